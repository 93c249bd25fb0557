package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sanitas/hce/internal/config"
	"github.com/sanitas/hce/internal/domain/clinical"
	"github.com/sanitas/hce/internal/domain/files"
	"github.com/sanitas/hce/internal/domain/identity"
	"github.com/sanitas/hce/internal/domain/report"
	"github.com/sanitas/hce/internal/platform/apperr"
	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/internal/platform/blobstore"
	"github.com/sanitas/hce/internal/platform/db"
	"github.com/sanitas/hce/internal/platform/middleware"
	"github.com/sanitas/hce/internal/platform/session"
)

const version = "1.0.0"

// app holds the wired services. pool is nil when the app runs without a
// database (tests).
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	sessions *session.Manager

	identity *identity.Handler
	clinical *clinical.Handler
	files    *files.Handler
	report   *report.Handler
}

// wire builds the services on top of pool and blobs.
func wire(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, store session.Store, blobs blobstore.Store, tx db.TxRunner) *app {
	sessions := session.NewManager(store, session.Config{
		Secret:     []byte(cfg.SessionSecret),
		TTL:        cfg.SessionTTL,
		CookieName: cfg.SessionCookieName,
		Secure:     cfg.SessionCookieSecure,
	}, logger)

	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewPatientRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		tx, sessions, logger.With().Str("component", "identity").Logger(),
	)
	scope := auth.NewScopeResolver(identitySvc)

	clinicalSvc := clinical.NewService(clinical.NewRepoPG(pool), logger.With().Str("component", "clinical").Logger())
	filesSvc := files.NewService(files.NewRepoPG(pool), blobs, identitySvc, identitySvc, tx,
		cfg.MaxUploadBytes, logger.With().Str("component", "files").Logger())
	identitySvc.SetPatientFiles(filesSvc)
	composer := report.NewComposer(identitySvc, clinicalSvc, filesSvc)

	return &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		sessions: sessions,
		identity: identity.NewHandler(identitySvc, sessions, scope),
		clinical: clinical.NewHandler(clinicalSvc, scope),
		files:    files.NewHandler(filesSvc, scope),
		report:   report.NewHandler(composer, scope),
	}
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(a.logger, a.cfg.ExposeErrorDetails)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.SecurityHeaders(a.cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit, a.cfg.MaxUploadBytes))
	if a.pool != nil {
		e.Use(db.ConnMiddleware(a.pool))
	}
	e.Use(a.sessions.Load())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, func() db.PoolStats { return db.GetPoolStats(a.pool) }))
	}

	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
	})

	api := e.Group("")
	a.identity.RegisterRoutes(api, limiter)
	a.clinical.RegisterRoutes(api)
	a.files.RegisterRoutes(api)
	a.report.RegisterRoutes(api)
	return e
}
