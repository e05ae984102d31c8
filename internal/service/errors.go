package service

import "fmt"

type Kind int

const (
	KindValidation Kind = iota + 1
	KindDuplicateIdentity
	KindInvalidCredentials
	KindInvalidToken
	KindSessionInvalid
	KindForbidden
	KindNotFound
	KindTooManyAttempts
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicateIdentity:
		return "duplicate_identity"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidToken:
		return "invalid_token"
	case KindSessionInvalid:
		return "session_invalid"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTooManyAttempts:
		return "too_many_attempts"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a failure the client is allowed to see. Message is user-facing.
// Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrValidation         = newError(KindValidation, "Errores de validación")
	ErrDuplicateIdentity  = newError(KindDuplicateIdentity, "Ya existe un usuario con estos datos")
	ErrInvalidCredentials = newError(KindInvalidCredentials, "Credenciales inválidas")
	ErrMissingToken       = newError(KindInvalidToken, "No token, authorization denied")
	ErrInvalidToken       = newError(KindInvalidToken, "Token is not valid")
	ErrSessionInvalid     = newError(KindSessionInvalid, "Session expired or invalid")
	ErrForbidden          = newError(KindForbidden, "Access denied. Admin role required.")
	ErrNotFound           = newError(KindNotFound, "Usuario no encontrado")
	ErrTooManyAttempts    = newError(KindTooManyAttempts, "Demasiados intentos fallidos, intenta de nuevo más tarde")
)
