package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/mail"
	"github.com/rucyang/metadata/internal/repository"
	"github.com/rucyang/metadata/internal/search"
)

// Notifier — постановка письма в очередь отправки.
type Notifier interface {
	Send(ctx context.Context, to, subject, templateID string, data mail.Data) error
}

// SearchIndex — полнотекстовый индекс сущностей.
type SearchIndex interface {
	IndexFile(f *model.File) error
	IndexDossier(d *model.Dossier) error
	IndexUser(u *model.User) error
	Remove(kind search.Kind, id int64) error
	Query(ctx context.Context, text string, kind search.Kind) ([]int64, error)
}

// FileTx выполняет fn в транзакции, передавая привязанные к ней репозитории.
// Реализуется repository.TxRunner.
type FileTx interface {
	RunFileTx(ctx context.Context, fn func(files repository.FileRepository, tags repository.TagRepository) error) error
}

// directTx — FileTx без транзакции, для хранилищ без её поддержки.
type directTx struct {
	files repository.FileRepository
	tags  repository.TagRepository
}

func (d directTx) RunFileTx(_ context.Context, fn func(files repository.FileRepository, tags repository.TagRepository) error) error {
	return fn(d.files, d.tags)
}

// mapRepoErr переводит ошибки репозитория в ошибки сервиса.
func mapRepoErr(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	default:
		return err
	}
}
