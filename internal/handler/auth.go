package handler

import (
	"errors"
	"net/http"

	"milista/internal/apierror"
	"milista/internal/dto"
	"milista/internal/middleware"
	"milista/internal/service"
	"milista/internal/store"

	"github.com/gin-gonic/gin"
)

// AuthHandler exposes login/logout on top of the session service.
type AuthHandler struct {
	sesiones service.SessionService
}

func NewAuthHandler(sesiones service.SessionService) *AuthHandler {
	return &AuthHandler{sesiones: sesiones}
}

// Login authenticates against the store and returns a bearer token. A user
// without an assigned place still logs in; the response status says why no
// lista loaded.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	resp, err := h.sesiones.Login(c.Request.Context(), req)
	if err != nil {
		var authErr *store.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusUnauthorized, apierror.New("Credenciales invalidas"))
			return
		}
		c.JSON(http.StatusInternalServerError, apierror.New("Error interno al iniciar sesion"))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout tears down the caller's lista subscription and signs out.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if err := h.sesiones.Logout(c.Request.Context(), claims.UID); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Error cerrando sesion"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Sesion cerrada"})
}
