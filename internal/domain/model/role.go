package model

// Role — роль с битовой маской прав.
// Хранится в таблице roles.
type Role struct {
	ID   int64
	Name string
	// IsDefault — роль назначается новым пользователям
	IsDefault bool
	// Permissions — побитовое ИЛИ выданных прав (см. пакет rbac)
	Permissions int
}
