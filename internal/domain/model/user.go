// Пакет model — доменные сущности сервиса архивных метаданных.
// Простые структуры без логики доступа к данным.
package model

import "time"

// User — учётная запись пользователя.
// Хранится в таблице users.
type User struct {
	ID int64
	// Email — уникальный адрес (регистр сохраняется как введён)
	Email string
	// Username — уникальное имя пользователя
	Username string
	// PasswordHash — bcrypt-хэш пароля, открытый пароль не хранится
	PasswordHash string
	// Confirmed — адрес email подтверждён
	Confirmed bool
	// Name — отображаемое имя
	Name string
	// Location — местоположение
	Location string
	// AboutMe — свободный текст о себе
	AboutMe string
	// MemberSince — время регистрации
	MemberSince time.Time
	// LastSeen — время последнего запроса
	LastSeen time.Time
	// RoleID — роль пользователя (обязательна)
	RoleID int64
}
