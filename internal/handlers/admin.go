package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"examprep/backend/internal/ids"
	"examprep/backend/internal/models"
	"examprep/backend/internal/service"
)

// userParam reads :id. Malformed ids cannot name a stored user and get the
// not-found envelope without a store round trip.
func (h HandlerSet) userParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !ids.Valid(id) {
		h.fail(c, service.ErrNotFound)
		return "", false
	}
	return id, true
}

// pagination reads page and perPage. page is clamped so the row offset
// stays within int32.
func pagination(c *gin.Context) (page, perPage int) {
	page, perPage = 1, 50
	if v, err := strconv.Atoi(c.Query("perPage")); err == nil && v > 0 && v <= 200 {
		perPage = v
	}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 1 {
		page = min(v, math.MaxInt32/perPage+1)
	}
	return page, perPage
}

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	page, perPage := pagination(c)

	users, total, err := h.admin.ListUsers(c.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"users":   newUserList(users),
		"total":   total,
		"page":    page,
		"perPage": perPage,
	}, "")
}

func (h HandlerSet) AdminSearchUsers(c *gin.Context) {
	users, err := h.admin.SearchUsers(c.Request.Context(), c.Query("query"))
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"users": newUserList(users),
		"total": len(users),
	}, "")
}

func (h HandlerSet) AdminGetUser(c *gin.Context) {
	id, ok := h.userParam(c)
	if !ok {
		return
	}
	user, err := h.admin.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user": newUserResponse(user)}, "")
}

type updatePermissionsRequest struct {
	Role        *string                 `json:"role"`
	Permissions []models.PagePermission `json:"permissions"`
}

func (h HandlerSet) AdminUpdatePermissions(c *gin.Context) {
	var req updatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	id, ok := h.userParam(c)
	if !ok {
		return
	}
	user, err := h.admin.UpdateAccess(c.Request.Context(), id, service.UpdateAccessInput{
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user": newUserResponse(user)}, "Permisos actualizados correctamente")
}

type updateStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

func (h HandlerSet) AdminUpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	id, ok := h.userParam(c)
	if !ok {
		return
	}
	user, err := h.admin.SetStatus(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		h.fail(c, err)
		return
	}

	msg := "Usuario desactivado correctamente"
	if user.IsActive {
		msg = "Usuario activado correctamente"
	}
	respond(c, http.StatusOK, gin.H{"user": newUserResponse(user)}, msg)
}

func (h HandlerSet) AdminListSessions(c *gin.Context) {
	id, ok := h.userParam(c)
	if !ok {
		return
	}
	sessions, err := h.admin.ListSessions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionResponse(s))
	}
	respond(c, http.StatusOK, out, "")
}

func (h HandlerSet) AdminLogoutAll(c *gin.Context) {
	id, ok := h.userParam(c)
	if !ok {
		return
	}
	closed, err := h.admin.ForceLogoutAll(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"closed": closed}, "Usuario desconectado de todos los dispositivos")
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	id, ok := h.userParam(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteUser(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Usuario eliminado correctamente")
}
