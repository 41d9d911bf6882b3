package router

import (
	"milista/internal/config"
	"milista/internal/handler"
	"milista/internal/middleware"
	"milista/internal/service"
	"milista/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← store.Client
func New(cfg *config.Config, st store.Client, sesiones service.SessionService) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Metrics())

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(sesiones)
	listaH := handler.NewListaHandler(sesiones)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(st))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	r.POST("/v1/auth/logout", jwtMW, authH.Logout)

	lista := r.Group("/v1/lista", jwtMW)
	{
		lista.GET("", listaH.Get)
		lista.GET("/status", listaH.Status)
		lista.GET("/stream", listaH.Stream)
		lista.PUT("/cabecera", listaH.GuardarCabecera)

		lista.POST("/items", listaH.Anadir)
		lista.PUT("/items/:id", listaH.Guardar)
		lista.PATCH("/items/:id/borrador", listaH.EditarBorrador)
		lista.DELETE("/items/:id", listaH.Borrar)

		lista.POST("/csv", listaH.ImportarCSV)
		lista.GET("/csv", listaH.ExportarCSV)
	}

	return r
}
