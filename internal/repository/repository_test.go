package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rucyang/metadata/internal/database/dbtest"
	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/repository"
)

// fixture — общие данные для интеграционных тестов репозиториев.
type fixture struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	dossiers repository.DossierRepository
	tags     repository.TagRepository
	files    repository.FileRepository
	tx       *repository.TxRunner

	role    *model.Role
	user    *model.User
	dossier *model.Dossier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool := dbtest.Pool(t)
	ctx := context.Background()

	f := &fixture{
		users:    repository.NewUserRepository(pool),
		roles:    repository.NewRoleRepository(pool),
		dossiers: repository.NewDossierRepository(pool),
		tags:     repository.NewTagRepository(pool),
		files:    repository.NewFileRepository(pool),
		tx:       repository.NewTxRunner(pool),
	}

	f.role = &model.Role{Name: "User", IsDefault: true, Permissions: 0x03}
	if err := f.roles.Upsert(ctx, f.role); err != nil {
		t.Fatalf("Upsert роли: %v", err)
	}
	f.user = &model.User{
		Email:        "alice@example.org",
		Username:     "alice",
		PasswordHash: "hash",
		RoleID:       f.role.ID,
	}
	if err := f.users.Create(ctx, f.user); err != nil {
		t.Fatalf("Create пользователя: %v", err)
	}
	f.dossier = &model.Dossier{Name: "1949-01"}
	if err := f.dossiers.Create(ctx, f.dossier); err != nil {
		t.Fatalf("Create дела: %v", err)
	}
	return f
}

func (f *fixture) newFile(path, title, carrier string) *model.File {
	return &model.File{
		StoragePath: path,
		Filename:    path,
		ContentType: "application/pdf",
		Size:        42,
		Checksum:    "abc",
		CreatorID:   f.user.ID,
		DossierID:   &f.dossier.ID,
		Title:       model.Title{Proper: title},
		Keywords:    model.Keywords{Who: "Mao", What: "meeting"},
		ArchiveNum:  "A-1",
		Language:    "中文",
		CarrierType: carrier,
	}
}

func TestUserRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("поиск по email и username", func(t *testing.T) {
		got, err := f.users.GetByEmail(ctx, "alice@example.org")
		if err != nil {
			t.Fatalf("GetByEmail: %v", err)
		}
		if got.ID != f.user.ID || got.Username != "alice" {
			t.Errorf("GetByEmail = %+v, хотели пользователя alice", got)
		}
		if got.MemberSince.IsZero() {
			t.Error("MemberSince не заполнен")
		}
		if _, err := f.users.GetByUsername(ctx, "alice"); err != nil {
			t.Errorf("GetByUsername: %v", err)
		}
	})

	t.Run("дубликат email", func(t *testing.T) {
		dup := &model.User{Email: "alice@example.org", Username: "alice2", PasswordHash: "x", RoleID: f.role.ID}
		if err := f.users.Create(ctx, dup); !errors.Is(err, repository.ErrConflict) {
			t.Errorf("Create дубликата: хотели ErrConflict, получили %v", err)
		}
	})

	t.Run("подтверждение и пароль", func(t *testing.T) {
		if err := f.users.SetConfirmed(ctx, f.user.ID); err != nil {
			t.Fatalf("SetConfirmed: %v", err)
		}
		if err := f.users.UpdatePassword(ctx, f.user.ID, "new-hash"); err != nil {
			t.Fatalf("UpdatePassword: %v", err)
		}
		at := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
		if err := f.users.Touch(ctx, f.user.ID, at); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		got, err := f.users.GetByID(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if !got.Confirmed || got.PasswordHash != "new-hash" {
			t.Errorf("получили confirmed=%v hash=%q", got.Confirmed, got.PasswordHash)
		}
		if !got.LastSeen.Equal(at) {
			t.Errorf("LastSeen = %v, хотели %v", got.LastSeen, at)
		}
	})

	t.Run("список и счётчик", func(t *testing.T) {
		n, err := f.users.Count(ctx, "ali")
		if err != nil || n != 1 {
			t.Errorf("Count = %d, %v; хотели 1", n, err)
		}
		list, err := f.users.List(ctx, "", 10, 0)
		if err != nil || len(list) != 1 {
			t.Errorf("List = %d, %v; хотели 1", len(list), err)
		}
	})

	t.Run("несуществующий", func(t *testing.T) {
		if _, err := f.users.GetByID(ctx, 999999); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("хотели ErrNotFound, получили %v", err)
		}
	})
}

func TestRoleRepository_UpsertIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	again := &model.Role{Name: "User", IsDefault: true, Permissions: 0x03}
	if err := f.roles.Upsert(ctx, again); err != nil {
		t.Fatalf("повторный Upsert: %v", err)
	}
	if again.ID != f.role.ID {
		t.Errorf("повторный Upsert создал новую роль: %d != %d", again.ID, f.role.ID)
	}

	def, err := f.roles.GetDefault(ctx)
	if err != nil {
		t.Fatalf("GetDefault: %v", err)
	}
	if def.Name != "User" {
		t.Errorf("GetDefault = %q, хотели User", def.Name)
	}

	roles, err := f.roles.List(ctx)
	if err != nil || len(roles) != 1 {
		t.Errorf("List = %d, %v; хотели 1", len(roles), err)
	}
}

func TestDossierRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.dossiers.Create(ctx, &model.Dossier{Name: "1949-01"}); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("дубликат дела: хотели ErrConflict, получили %v", err)
	}

	got, err := f.dossiers.GetByName(ctx, "1949-01")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.ID != f.dossier.ID {
		t.Errorf("GetByName = %d, хотели %d", got.ID, f.dossier.ID)
	}

	got.Name = "1949-02"
	if err := f.dossiers.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := f.dossiers.GetByName(ctx, "1949-01"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("старое имя: хотели ErrNotFound, получили %v", err)
	}
}

func TestFileRepository_CreateGetUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.newFile("2024/a.pdf", "会议记录", "文档")
	file.Title.Sub = "第一卷"
	file.Quantity = "1 册"
	if err := f.files.Create(ctx, file); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if file.ID == 0 || file.CreatedAt.IsZero() {
		t.Fatalf("Create не заполнил ID/CreatedAt: %+v", file)
	}

	dup := f.newFile("2024/a.pdf", "копия", "文档")
	if err := f.files.Create(ctx, dup); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("дубликат пути: хотели ErrConflict, получили %v", err)
	}

	got, err := f.files.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title.Proper != "会议记录" || got.Title.Sub != "第一卷" || got.Quantity != "1 册" {
		t.Errorf("GetByID вернул %+v", got)
	}
	if got.DossierID == nil || *got.DossierID != f.dossier.ID {
		t.Errorf("DossierID = %v, хотели %d", got.DossierID, f.dossier.ID)
	}

	got.Title.Proper = "新标题"
	got.StoragePath = "другой/путь"
	got.Keywords.Where = "北京"
	if err := f.files.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := f.files.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetByID после Update: %v", err)
	}
	if updated.Title.Proper != "新标题" || updated.Keywords.Where != "北京" {
		t.Errorf("Update не применился: %+v", updated)
	}
	if updated.StoragePath != "2024/a.pdf" {
		t.Errorf("StoragePath = %q, путь хранения не должен меняться", updated.StoragePath)
	}
}

func TestFileRepository_SoftDeleteAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.newFile("a.pdf", "A", "文档")
	b := f.newFile("b.jpg", "B", "图片")
	c := f.newFile("c.jpg", "C", "图片")
	for _, file := range []*model.File{a, b, c} {
		if err := f.files.Create(ctx, file); err != nil {
			t.Fatalf("Create %s: %v", file.StoragePath, err)
		}
	}
	if err := f.files.SoftDelete(ctx, c.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	visible := false
	photo := "图片"
	tests := []struct {
		name    string
		filters repository.FileListFilters
		want    int
	}{
		{name: "все", filters: repository.FileListFilters{}, want: 3},
		{name: "видимые", filters: repository.FileListFilters{Hidden: &visible}, want: 2},
		{name: "видимые фото", filters: repository.FileListFilters{Hidden: &visible, CarrierType: &photo}, want: 1},
		{name: "по автору", filters: repository.FileListFilters{CreatorID: &f.user.ID}, want: 3},
		{name: "по делу", filters: repository.FileListFilters{DossierID: &f.dossier.ID, Hidden: &visible}, want: 2},
		{name: "по заглавию", filters: repository.FileListFilters{Query: "B"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := f.files.Count(ctx, tt.filters)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != tt.want {
				t.Errorf("Count = %d, хотели %d", n, tt.want)
			}
			list, err := f.files.List(ctx, tt.filters, 10, 0)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("List = %d записей, хотели %d", len(list), tt.want)
			}
		})
	}

	list, err := f.files.List(ctx, repository.FileListFilters{Hidden: &visible}, 1, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("первая страница = %v, хотели самую новую запись %d", list, b.ID)
	}

	hidden, err := f.files.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("скрытая запись должна читаться по ID: %v", err)
	}
	if !hidden.Hidden {
		t.Error("Hidden = false после SoftDelete")
	}
}

func TestFileRepository_FindByFieldAndIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.newFile("a.pdf", "A", "文档")
	b := f.newFile("b.pdf", "B", "文档")
	b.Keywords.Who = "Zhou"
	for _, file := range []*model.File{a, b} {
		if err := f.files.Create(ctx, file); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := f.files.SoftDelete(ctx, a.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	found, err := f.files.FindByField(ctx, model.KeyWho, "Mao", false)
	if err != nil {
		t.Fatalf("FindByField: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("FindByField без скрытых = %d, хотели 0", len(found))
	}
	found, err = f.files.FindByField(ctx, model.KeyWho, "Mao", true)
	if err != nil || len(found) != 1 {
		t.Errorf("FindByField со скрытыми = %d, %v; хотели 1", len(found), err)
	}
	if _, err := f.files.FindByField(ctx, model.KeyField("title_proper; --"), "x", true); err == nil {
		t.Error("FindByField принял недопустимое поле")
	}

	byIDs, err := f.files.ListByIDs(ctx, []int64{b.ID, a.ID, 999999}, true)
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(byIDs) != 2 || byIDs[0].ID != b.ID || byIDs[1].ID != a.ID {
		t.Errorf("ListByIDs нарушил порядок: %v", byIDs)
	}
	byIDs, err = f.files.ListByIDs(ctx, []int64{b.ID, a.ID}, false)
	if err != nil || len(byIDs) != 1 {
		t.Errorf("ListByIDs без скрытых = %d, %v; хотели 1", len(byIDs), err)
	}
}

func TestFileRepository_Tags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.newFile("t.pdf", "T", "文档")
	if err := f.files.Create(ctx, file); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var ids []int64
	for _, name := range []string{"档案", "历史", "档案"} {
		tag, err := f.tags.GetOrCreate(ctx, name)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		ids = append(ids, tag.ID)
	}
	if ids[0] != ids[2] {
		t.Errorf("GetOrCreate вернул разные ID для одного имени: %d, %d", ids[0], ids[2])
	}

	if err := f.files.SetTags(ctx, file.ID, ids); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	names, err := f.files.Tags(ctx, file.ID)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("Tags = %v, хотели 2 тега", names)
	}

	if err := f.files.SetTags(ctx, file.ID, nil); err != nil {
		t.Fatalf("SetTags(nil): %v", err)
	}
	names, _ = f.files.Tags(ctx, file.ID)
	if len(names) != 0 {
		t.Errorf("Tags после очистки = %v", names)
	}
}

func TestTxRunner_Rollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sentinel := errors.New("откат")
	err := f.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		files := repository.NewFileRepository(tx)
		if err := files.Create(ctx, f.newFile("tx.pdf", "TX", "文档")); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunInTx = %v, хотели sentinel", err)
	}

	n, err := f.files.Count(ctx, repository.FileListFilters{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("после отката Count = %d, хотели 0", n)
	}
}

func TestTxRunner_RunFileTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file := f.newFile("tags.pdf", "Теги", "文档")
	err := f.tx.RunFileTx(ctx, func(files repository.FileRepository, tags repository.TagRepository) error {
		if err := files.Create(ctx, file); err != nil {
			return err
		}
		tag, err := tags.GetOrCreate(ctx, "финансы")
		if err != nil {
			return err
		}
		return files.SetTags(ctx, file.ID, []int64{tag.ID})
	})
	if err != nil {
		t.Fatalf("RunFileTx: %v", err)
	}

	names, err := f.files.Tags(ctx, file.ID)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(names) != 1 || names[0] != "финансы" {
		t.Errorf("Tags = %v, хотели [финансы]", names)
	}
}
