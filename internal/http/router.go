// Package httpapi wires the HTTP transport (Gin) to the reminder service and
// the dispatch engine. It owns middleware ordering, the versioned API routes,
// health and metrics endpoints, API docs and the optional static frontend.
package httpapi

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-reminder-backend/docs"
	"github.com/tbourn/go-reminder-backend/internal/config"
	"github.com/tbourn/go-reminder-backend/internal/domain"
	"github.com/tbourn/go-reminder-backend/internal/http/handlers"
	"github.com/tbourn/go-reminder-backend/internal/http/middleware"
	"github.com/tbourn/go-reminder-backend/internal/repo"
	"github.com/tbourn/go-reminder-backend/internal/scheduler"
	"github.com/tbourn/go-reminder-backend/internal/services"
)

// Engine is the dispatch side the router exposes: manual scans and the timer
// state reported by /health. *scheduler.Driver satisfies it.
type Engine interface {
	handlers.DispatchRunner
	State() scheduler.State
}

// reminderRepoShim adapts the repository free functions to the
// services.ReminderRepo interface.
type reminderRepoShim struct{}

func (reminderRepoShim) CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) error {
	return repo.CreateReminder(ctx, db, r)
}

func (reminderRepoShim) GetReminder(ctx context.Context, db *gorm.DB, id uint) (*domain.Reminder, error) {
	return repo.GetReminder(ctx, db, id)
}

func (reminderRepoShim) CountReminders(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountReminders(ctx, db)
}

func (reminderRepoShim) ListRemindersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Reminder, error) {
	return repo.ListRemindersPage(ctx, db, offset, limit)
}

func (reminderRepoShim) UpdateReminder(ctx context.Context, db *gorm.DB, id uint, r *domain.Reminder) error {
	return repo.UpdateReminder(ctx, db, id, r)
}

func (reminderRepoShim) DeleteReminder(ctx context.Context, db *gorm.DB, id uint) error {
	return repo.DeleteReminder(ctx, db, id)
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with target scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (metrics and docs excluded)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per client, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, engine Engine, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, clientID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, clientID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClient())
	r.Use(rl.Handler())

	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		Expose:       []string{"ETag", "Idempotency-Replayed"},
	}))

	r.NoRoute(staticOr404(cfg.StaticDir, cfg.APIBasePath))
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(db, engine))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	svc := services.NewReminderService(db, reminderRepoShim{})
	h := handlers.New(svc, engine)
	if cfg.IdempotencyTTL > 0 {
		h.IdempotencyTTL = cfg.IdempotencyTTL
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/reminders", h.ListReminders)
		api.POST("/reminders", h.CreateReminder)
		api.POST("/reminders/check", h.CheckReminders)
		api.GET("/reminders/:id", h.GetReminder)
		api.PUT("/reminders/:id", h.UpdateReminder)
		api.DELETE("/reminders/:id", h.DeleteReminder)
	}
}

// corsConfig allows every origin when the allowlist is empty; credentials
// stay off in both modes.
func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "If-None-Match",
			middleware.HeaderIdempotencyKey, middleware.HeaderClientID,
		},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}

// health reports liveness, the scheduler state and the number of reminders
// currently due. A failing store turns the answer into 503.
func health(db *gorm.DB, engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"status": "ok", "scheduler": engine.State()}
		due, err := repo.DueStats(ctx, db, time.Now().UTC())
		if err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Msg("health: due query failed")
			body["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["due"] = due
		c.JSON(http.StatusOK, body)
	}
}

// staticOr404 serves GET/HEAD requests from dir when the file exists and
// answers everything else with the JSON 404 envelope. Paths under apiBase
// never fall through to files unless the API is mounted at the root.
func staticOr404(dir, apiBase string) gin.HandlerFunc {
	var fs http.FileSystem
	var files http.Handler
	if dir != "" {
		fs = http.Dir(dir)
		files = http.FileServer(fs)
	}
	return func(c *gin.Context) {
		if fs != nil && (c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) &&
			!underPrefix(c.Request.URL.Path, apiBase) {
			if f, err := fs.Open(path.Clean("/" + c.Request.URL.Path)); err == nil {
				_ = f.Close()
				files.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	}
}

// underPrefix reports whether p is prefix itself or below it. A root or
// empty prefix matches nothing.
func underPrefix(p, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return false
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
