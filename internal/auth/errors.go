package auth

import "errors"

// Ошибки аутентификации различимы внутри системы ради содержимого аудита.
// HTTP-слой показывает их пользователю с огрублением, чтобы не подтверждать
// существование аккаунта.
var (
	ErrDuplicateAccount   = errors.New("auth: account already exists")
	ErrAccountNotFound    = errors.New("auth: account not found")
	ErrAccountBlocked     = errors.New("auth: account is blocked")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidToken       = errors.New("auth: invalid token")
)
