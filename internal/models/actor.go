package models

import "time"

// Role роль участника системы
type Role string

// Роли
const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// SystemActorID автор переходов, инициированных самим движком (истечение пулов)
const SystemActorID = "system"

// Actor пользователь API, от имени которого выполняются операции
type Actor struct {
	ID        string    `json:"id" db:"id"`
	Role      Role      `json:"role" db:"role"`
	TokenHash string    `json:"-" db:"token_hash"` // bcrypt, не возвращается в JSON
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsAdmin проверка прав администратора
func (a *Actor) IsAdmin() bool {
	return a != nil && (a.Role == RoleAdmin || a.Role == RoleSystem)
}
