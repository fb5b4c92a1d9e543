package models

// Роли пользователей из claims внешнего провайдера идентификации.
// Сервис не хранит пользователей: достаточно идентификатора и роли из токена.
const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)
