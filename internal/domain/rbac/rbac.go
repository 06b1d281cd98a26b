// Пакет rbac — права доступа на основе битовой маски роли.
// Право p выполняется, если все его биты присутствуют в маске роли.
// ADMINISTER — отдельный бит суперпользователя, а не объединение остальных.
package rbac

import "github.com/rucyang/metadata/internal/domain/model"

// Permission — бит права.
type Permission int

// Права доступа.
const (
	UploadFile         Permission = 0x01
	DownloadFile       Permission = 0x02
	ReviewUploadedFile Permission = 0x04
	ManageUser         Permission = 0x08
	Administer         Permission = 0x80
)

// Имена встроенных ролей.
const (
	RoleUser          = "User"
	RoleModerator     = "Moderator"
	RoleAdministrator = "Administrator"
)

// Tier — описание встроенной роли для начального заполнения.
type Tier struct {
	Name        string
	Permissions Permission
	IsDefault   bool
}

// Tiers возвращает три встроенные роли в порядке возрастания привилегий.
func Tiers() []Tier {
	return []Tier{
		{Name: RoleUser, Permissions: UploadFile | DownloadFile, IsDefault: true},
		{Name: RoleModerator, Permissions: UploadFile | DownloadFile | ReviewUploadedFile | ManageUser},
		{Name: RoleAdministrator, Permissions: 0xff},
	}
}

// Can проверяет, что маска perms содержит все биты p.
func Can(perms int, p Permission) bool {
	return Permission(perms)&p == p
}

// Principal — субъект доступа текущего запроса.
// Никогда не nil: для неаутентифицированных запросов используется Anonymous.
type Principal interface {
	// ID — идентификатор пользователя (0 для анонимного)
	ID() int64
	Username() string
	IsAuthenticated() bool
	Confirmed() bool
	Can(p Permission) bool
	IsAdministrator() bool
}

// Anonymous — неаутентифицированный субъект. Все проверки прав ложны.
var Anonymous Principal = anonymous{}

type anonymous struct{}

func (anonymous) ID() int64             { return 0 }
func (anonymous) Username() string      { return "" }
func (anonymous) IsAuthenticated() bool { return false }
func (anonymous) Confirmed() bool       { return false }
func (anonymous) Can(Permission) bool   { return false }
func (anonymous) IsAdministrator() bool { return false }

// UserPrincipal — аутентифицированный пользователь с ролью.
type UserPrincipal struct {
	User *model.User
	Role *model.Role
}

// NewUserPrincipal создаёт субъект для пользователя и его роли.
func NewUserPrincipal(user *model.User, role *model.Role) *UserPrincipal {
	return &UserPrincipal{User: user, Role: role}
}

func (p *UserPrincipal) ID() int64             { return p.User.ID }
func (p *UserPrincipal) Username() string      { return p.User.Username }
func (p *UserPrincipal) IsAuthenticated() bool { return true }
func (p *UserPrincipal) Confirmed() bool       { return p.User.Confirmed }

// Can проверяет право по маске роли. Пользователь без роли прав не имеет.
func (p *UserPrincipal) Can(perm Permission) bool {
	if p.Role == nil {
		return false
	}
	return Can(p.Role.Permissions, perm)
}

// IsAdministrator — наличие бита ADMINISTER.
func (p *UserPrincipal) IsAdministrator() bool {
	return p.Can(Administer)
}

// PermissionNames возвращает имена прав, присутствующих в маске.
// Используется для отображения ролей в консоли администратора.
func PermissionNames(perms int) []string {
	all := []struct {
		p    Permission
		name string
	}{
		{UploadFile, "UPLOAD_FILE"},
		{DownloadFile, "DOWNLOAD_FILE"},
		{ReviewUploadedFile, "REVIEW_UPLOADED_FILE"},
		{ManageUser, "MANAGE_USER"},
		{Administer, "ADMINISTER"},
	}
	var names []string
	for _, item := range all {
		if Can(perms, item.p) {
			names = append(names, item.name)
		}
	}
	return names
}
