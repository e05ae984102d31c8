package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"examprep/backend/internal/models"
	"examprep/backend/internal/service"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindDuplicateIdentity, service.KindInvalidCredentials:
		return http.StatusBadRequest
	case service.KindInvalidToken, service.KindSessionInvalid:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindTooManyAttempts:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// fail writes err as an envelope. Errors outside the service taxonomy are
// logged and reported as a generic 500.
func (h HandlerSet) fail(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		c.JSON(statusFor(svcErr.Kind), envelope{Message: svcErr.Message})
		return
	}

	h.log.Error().
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("request_id", c.Writer.Header().Get("X-Request-Id")).
		Msg("request failed")

	resp := envelope{Message: "Error del servidor"}
	if !h.cfg.IsProduction() {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusInternalServerError, resp)
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var fieldMessages = map[string]string{
	"username": "El nombre de usuario debe tener al menos 3 caracteres",
	"email":    "Por favor ingresa un email válido",
	"password": "La contraseña debe tener al menos 6 caracteres",
	"phone":    "El teléfono debe tener al menos 9 caracteres",
	"isActive": "El estado es requerido",
}

// invalid reports a request body that failed binding.
func (h HandlerSet) invalid(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, envelope{Message: service.ErrValidation.Message, Error: "cuerpo de solicitud inválido"})
		return
	}

	fields := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonName(fe.Field())
		msg, ok := fieldMessages[field]
		if !ok {
			msg = field + " es inválido"
		}
		if field == "password" && fe.Tag() == "required" {
			msg = "La contraseña es requerida"
		}
		fields = append(fields, fieldError{Field: field, Message: msg})
	}
	c.JSON(http.StatusBadRequest, envelope{Message: service.ErrValidation.Message, Error: fields})
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return string(field[0]|0x20) + field[1:]
}

type userResponse struct {
	ID          string                  `json:"id"`
	Username    string                  `json:"username"`
	Email       string                  `json:"email"`
	Phone       string                  `json:"phone"`
	Role        string                  `json:"role"`
	Permissions []models.PagePermission `json:"permissions"`
	IsActive    bool                    `json:"isActive"`
	LastLogin   *time.Time              `json:"lastLogin,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Phone:       u.Phone,
		Role:        string(u.Role),
		Permissions: u.Permissions.List(),
		IsActive:    u.IsActive,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func newUserList(users []models.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	return out
}

type sessionResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	DeviceID     string     `json:"deviceId"`
	UserAgent    string     `json:"userAgent"`
	IPAddress    string     `json:"ipAddress"`
	LoginTime    time.Time  `json:"loginTime"`
	LastActivity time.Time  `json:"lastActivity"`
	LogoutTime   *time.Time `json:"logoutTime,omitempty"`
	IsActive     bool       `json:"isActive"`
	ForcedLogout bool       `json:"forcedLogout"`
}

func newSessionResponse(s models.Session) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		UserID:       s.UserID,
		DeviceID:     s.DeviceID,
		UserAgent:    s.UserAgent,
		IPAddress:    s.IPAddress,
		LoginTime:    s.LoginTime,
		LastActivity: s.LastActivity,
		LogoutTime:   s.LogoutTime,
		IsActive:     s.IsActive,
		ForcedLogout: s.ForcedLogout,
	}
}
