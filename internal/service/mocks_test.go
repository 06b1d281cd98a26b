package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rucyang/metadata/internal/blobstore"
	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/mail"
	"github.com/rucyang/metadata/internal/repository"
	"github.com/rucyang/metadata/internal/search"
)

// --- In-memory репозитории ---

// memUsers — UserRepository в памяти.
type memUsers struct {
	mu     sync.Mutex
	byID   map[int64]*model.User
	nextID int64
	// touchFn — подмена Touch для проверки ошибок
	touchFn func(ctx context.Context, id int64, at time.Time) error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*model.User)}
}

func (m *memUsers) taken(email, username string, except int64) bool {
	for id, u := range m.byID {
		if id != except && (u.Email == email || u.Username == username) {
			return true
		}
	}
	return false
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(u.Email, u.Username, 0) {
		return repository.ErrConflict
	}
	m.nextID++
	u.ID = m.nextID
	u.MemberSince = time.Now()
	u.LastSeen = u.MemberSince
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username })
}

func (m *memUsers) mutate(id int64, fn func(u *model.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) Update(_ context.Context, u *model.User) error {
	m.mu.Lock()
	conflict := m.taken(u.Email, u.Username, u.ID)
	m.mu.Unlock()
	if conflict {
		return repository.ErrConflict
	}
	return m.mutate(u.ID, func(stored *model.User) {
		hash := stored.PasswordHash
		*stored = *u
		stored.PasswordHash = hash
	})
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	return m.mutate(id, func(u *model.User) { u.PasswordHash = hash })
}

func (m *memUsers) UpdateEmail(_ context.Context, id int64, email string) error {
	m.mu.Lock()
	conflict := m.taken(email, "", id)
	m.mu.Unlock()
	if conflict {
		return repository.ErrConflict
	}
	return m.mutate(id, func(u *model.User) { u.Email = email })
}

func (m *memUsers) SetConfirmed(_ context.Context, id int64) error {
	return m.mutate(id, func(u *model.User) { u.Confirmed = true })
}

func (m *memUsers) Touch(ctx context.Context, id int64, at time.Time) error {
	if m.touchFn != nil {
		return m.touchFn(ctx, id, at)
	}
	return m.mutate(id, func(u *model.User) { u.LastSeen = at })
}

func (m *memUsers) List(_ context.Context, _ string, _, _ int) ([]*model.User, error) {
	return nil, nil
}

func (m *memUsers) Count(_ context.Context, _ string) (int, error) {
	return len(m.byID), nil
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

// memRoles — RoleRepository в памяти.
type memRoles struct {
	roles []*model.Role
}

func (m *memRoles) Upsert(_ context.Context, role *model.Role) error {
	for _, r := range m.roles {
		if r.Name == role.Name {
			r.Permissions = role.Permissions
			r.IsDefault = role.IsDefault
			role.ID = r.ID
			return nil
		}
	}
	role.ID = int64(len(m.roles) + 1)
	cp := *role
	m.roles = append(m.roles, &cp)
	return nil
}

func (m *memRoles) GetByID(_ context.Context, id int64) (*model.Role, error) {
	for _, r := range m.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRoles) GetByName(_ context.Context, name string) (*model.Role, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRoles) GetDefault(_ context.Context) (*model.Role, error) {
	for _, r := range m.roles {
		if r.IsDefault {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRoles) List(_ context.Context) ([]*model.Role, error) { return m.roles, nil }

func (m *memRoles) Update(_ context.Context, _ *model.Role) error { return nil }

func (m *memRoles) Delete(_ context.Context, _ int64) error { return nil }

// memDossiers — DossierRepository в памяти.
type memDossiers struct {
	items []*model.Dossier
}

func (m *memDossiers) Create(_ context.Context, d *model.Dossier) error {
	for _, x := range m.items {
		if x.Name == d.Name {
			return repository.ErrConflict
		}
	}
	d.ID = int64(len(m.items) + 1)
	d.CreatedAt = time.Now()
	m.items = append(m.items, d)
	return nil
}

func (m *memDossiers) GetByID(_ context.Context, id int64) (*model.Dossier, error) {
	for _, d := range m.items {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memDossiers) GetByName(_ context.Context, name string) (*model.Dossier, error) {
	for _, d := range m.items {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memDossiers) List(_ context.Context, _ string, _, _ int) ([]*model.Dossier, error) {
	return m.items, nil
}

func (m *memDossiers) Count(_ context.Context, _ string) (int, error) { return len(m.items), nil }

func (m *memDossiers) Update(_ context.Context, _ *model.Dossier) error { return nil }

func (m *memDossiers) Delete(_ context.Context, _ int64) error { return nil }

// memFiles — FileRepository в памяти.
type memFiles struct {
	mu    sync.Mutex
	byID  map[int64]*model.File
	tags  map[int64][]int64
	names map[int64]string
	// createFn — подмена Create для проверки ошибок
	createFn func(ctx context.Context, f *model.File) error
}

func newMemFiles() *memFiles {
	return &memFiles{
		byID:  make(map[int64]*model.File),
		tags:  make(map[int64][]int64),
		names: make(map[int64]string),
	}
}

func (m *memFiles) Create(ctx context.Context, f *model.File) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = int64(len(m.byID) + 1)
	f.CreatedAt = time.Now().Add(time.Duration(f.ID) * time.Second)
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *memFiles) GetByID(_ context.Context, id int64) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFiles) GetByStoragePath(_ context.Context, path string) (*model.File, error) {
	for _, f := range m.byID {
		if f.StoragePath == path {
			cp := *f
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memFiles) Update(_ context.Context, f *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[f.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *f
	m.byID[f.ID] = &cp
	return nil
}

func (m *memFiles) SoftDelete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.Hidden = true
	return nil
}

func (m *memFiles) filter(filters repository.FileListFilters) []*model.File {
	var out []*model.File
	for _, f := range m.byID {
		if filters.Hidden != nil && f.Hidden != *filters.Hidden {
			continue
		}
		if filters.CreatorID != nil && f.CreatorID != *filters.CreatorID {
			continue
		}
		if filters.CarrierType != nil && f.CarrierType != *filters.CarrierType {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memFiles) List(_ context.Context, filters repository.FileListFilters, limit, offset int) ([]*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(filters)
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *memFiles) Count(_ context.Context, filters repository.FileListFilters) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(filters)), nil
}

func (m *memFiles) FindByField(_ context.Context, field model.KeyField, value string, includeHidden bool) ([]*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.File
	for _, f := range m.filter(repository.FileListFilters{}) {
		if f.Keywords.Value(field) == value && (includeHidden || !f.Hidden) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFiles) ListByIDs(_ context.Context, ids []int64, includeHidden bool) ([]*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.File
	for _, id := range ids {
		if f, ok := m.byID[id]; ok && (includeHidden || !f.Hidden) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memFiles) SetTags(_ context.Context, fileID int64, tagIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[fileID] = tagIDs
	return nil
}

func (m *memFiles) Tags(_ context.Context, fileID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range m.tags[fileID] {
		out = append(out, m.names[id])
	}
	return out, nil
}

func (m *memFiles) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

// memTags — TagRepository в памяти; имена видны memFiles.Tags.
type memTags struct {
	files *memFiles
	ids   map[string]int64
}

func (m *memTags) GetOrCreate(_ context.Context, name string) (*model.Tag, error) {
	if id, ok := m.ids[name]; ok {
		return &model.Tag{ID: id, Name: name}, nil
	}
	id := int64(len(m.ids) + 1)
	m.ids[name] = id
	m.files.mu.Lock()
	m.files.names[id] = name
	m.files.mu.Unlock()
	return &model.Tag{ID: id, Name: name}, nil
}

func (m *memTags) List(_ context.Context, _ string, _, _ int) ([]*model.Tag, error) { return nil, nil }

func (m *memTags) Count(_ context.Context, _ string) (int, error) { return len(m.ids), nil }

func (m *memTags) Delete(_ context.Context, _ int64) error { return nil }

// --- Хранилище, индекс, почта ---

// memBlobs — blobstore.Store в памяти.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveFn  func(name string) error
}

func (m *memBlobs) Save(_ context.Context, r io.Reader, originalName string) (*blobstore.SaveResult, error) {
	if m.saveFn != nil {
		if err := m.saveFn(originalName); err != nil {
			return nil, err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	path := fmt.Sprintf("%d_%s", len(m.objects)+1, originalName)
	m.objects[path] = data
	return &blobstore.SaveResult{StoragePath: path, Size: int64(len(data)), Checksum: "sum"}, nil
}

func (m *memBlobs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return blobstore.ErrNotFound
	}
	delete(m.objects, path)
	return nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// fakeIndex — SearchIndex, запоминающий документы.
type fakeIndex struct {
	mu   sync.Mutex
	docs map[string]bool
	// queryFn — подмена Query
	queryFn func(text string, kind search.Kind) []int64
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]bool)}
}

func (x *fakeIndex) put(kind search.Kind, id int64, present bool) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	key := fmt.Sprintf("%s:%d", kind, id)
	if present {
		x.docs[key] = true
	} else {
		delete(x.docs, key)
	}
	return nil
}

func (x *fakeIndex) has(kind search.Kind, id int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.docs[fmt.Sprintf("%s:%d", kind, id)]
}

func (x *fakeIndex) IndexFile(f *model.File) error {
	return x.put(search.KindFile, f.ID, !f.Hidden)
}

func (x *fakeIndex) IndexDossier(d *model.Dossier) error {
	return x.put(search.KindDossier, d.ID, true)
}

func (x *fakeIndex) IndexUser(u *model.User) error {
	return x.put(search.KindUser, u.ID, true)
}

func (x *fakeIndex) Remove(kind search.Kind, id int64) error {
	return x.put(kind, id, false)
}

func (x *fakeIndex) Query(_ context.Context, text string, kind search.Kind) ([]int64, error) {
	if x.queryFn != nil {
		return x.queryFn(text, kind), nil
	}
	return nil, nil
}

// sentMail — письмо, переданное Notifier.
type sentMail struct {
	to, subject, templateID string
	data                    mail.Data
}

// fakeNotifier — Notifier, запоминающий письма.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *fakeNotifier) Send(_ context.Context, to, subject, templateID string, data mail.Data) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{to: to, subject: subject, templateID: templateID, data: data})
	return nil
}

func (n *fakeNotifier) last(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("письма не отправлялись")
	}
	return n.sent[len(n.sent)-1]
}

// --- Вспомогательные функции ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fileHeader собирает *multipart.FileHeader через настоящий multipart-разбор.
func fileHeader(t *testing.T, field, name, content string) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", "text/plain")
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := io.Copy(part, strings.NewReader(content)); err != nil {
		t.Fatalf("запись части: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File[field][0]
}
