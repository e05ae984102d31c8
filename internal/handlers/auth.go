package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"examprep/backend/internal/middleware"
	"examprep/backend/internal/service"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone" binding:"required,min=9"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

func clientInfo(c *gin.Context) service.ClientInfo {
	return service.ClientInfo{
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: c.ClientIP(),
	}
}

func (h HandlerSet) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Client:   clientInfo(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusCreated, authResponse{
		User:  newUserResponse(result.User),
		Token: result.Token,
	}, "Usuario registrado exitosamente")
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Client:   clientInfo(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, authResponse{
		User:  newUserResponse(result.User),
		Token: result.Token,
	}, "Inicio de sesión exitoso")
}

// Logout succeeds whether or not the request carries a live token.
func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.BearerToken(c)); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Cierre de sesión exitoso")
}

func (h HandlerSet) Profile(c *gin.Context) {
	identity, found := middleware.CurrentIdentity(c)
	if !found {
		h.fail(c, service.ErrMissingToken)
		return
	}

	user, err := h.auth.Profile(c.Request.Context(), identity.User.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user": newUserResponse(user)}, "")
}
