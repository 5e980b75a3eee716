// Package pubapi is a JSON HTTP API for contact-form submissions and blog
// posts, built with Echo on a relational store.
//
// The App wires the contact and blog repositories, the admin gate, rate
// limiting, image intake, feeds and observability into one Echo instance.
// The blog routes are a feature that can be switched off, leaving a
// contact-only service.
package pubapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/eringen/pubapi/blog"
	"github.com/eringen/pubapi/contact"
	"github.com/eringen/pubapi/storage"
	"github.com/eringen/pubapi/telemetry"
)

// App is the central pubapi application.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	DB       *storage.DB
	Contacts *contact.Store
	Blogs    *blog.Store
	Logger   *slog.Logger

	notifier       contact.Notifier
	contactLimiter RateLimiter
	loginLimiter   *WindowLimiter
	redis          *redis.Client
	metrics        *telemetry.Metrics
	customRoutes   []func(*App)
	background     sync.WaitGroup
	closers        []func() error
}

// New builds the application on db and registers every route. The schema
// is not touched; call Provision before Start.
func New(cfg SiteConfig, db *storage.DB, logger *slog.Logger, opts ...Option) (*App, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pubapi: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	a := &App{
		Config:   cfg,
		Echo:     e,
		DB:       db,
		Contacts: contact.NewStore(db),
		Logger:   logger,
	}
	if cfg.Features.Blog {
		a.Blogs = blog.NewStore(db)
	}

	for _, opt := range opts {
		opt(a)
	}

	if err := a.initLimiters(); err != nil {
		return nil, err
	}
	if err := a.initNotifier(); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Telemetry.MetricsEnabled {
		a.metrics = telemetry.NewMetrics()
	}
	if !a.adminEnabled() {
		logger.Warn("admin.password is not set: administrative endpoints are open")
	}

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return a, nil
}

func (a *App) initLimiters() error {
	a.loginLimiter = NewWindowLimiter(5, time.Minute)
	a.closers = append(a.closers, func() error { a.loginLimiter.Stop(); return nil })

	if a.contactLimiter != nil {
		return nil
	}
	perMinute := a.Config.RateLimit.ContactPerMinute
	if perMinute < 0 {
		a.Logger.Info("contact rate limiting disabled")
		return nil
	}
	if addr := a.Config.RateLimit.RedisAddr; addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: a.Config.RateLimit.RedisPassword,
			DB:       a.Config.RateLimit.RedisDB,
		})
		a.closers = append(a.closers, a.redis.Close)
		a.contactLimiter = NewRedisLimiter(a.redis, "pubapi:ratelimit", perMinute, time.Minute)
		return nil
	}
	mem := NewWindowLimiter(perMinute, time.Minute)
	a.closers = append(a.closers, func() error { mem.Stop(); return nil })
	a.contactLimiter = mem
	return nil
}

func (a *App) initNotifier() error {
	if a.notifier != nil || !a.Config.Mail.Enabled {
		return nil
	}
	m := a.Config.Mail
	n, err := contact.NewMailNotifier(contact.MailConfig{
		Host:     m.Host,
		Port:     m.Port,
		Username: m.Username,
		Password: m.Password,
		From:     m.From,
		To:       m.To,
		UseTLS:   m.UseTLS,
		Timeout:  m.Timeout,
	})
	if err != nil {
		return fmt.Errorf("pubapi: %w", err)
	}
	a.notifier = n
	return nil
}

// Tables returns the managed tables for the enabled features.
func (a *App) Tables() []storage.Table {
	d := a.DB.Dialect()
	tables := []storage.Table{contact.Schema(d)}
	if a.Config.Features.Blog {
		tables = append(tables, blog.Schema(d))
	}
	return tables
}

// Provision creates missing tables and columns. It must finish before the
// listener starts.
func (a *App) Provision(ctx context.Context) error {
	return storage.NewProvisioner(a.DB, a.Logger).Provision(ctx, a.Tables()...)
}

func (a *App) setupRoutes() {
	e := a.Echo

	if dir := a.Config.Server.StaticDir; dir != "" {
		e.Static("/public", dir)
	}
	if a.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	}
	e.GET("/api/health", a.handleHealth)

	e.POST("/api/contact", a.handleSubmitContact)

	admin := a.requireAdmin
	e.GET("/api/contacts", a.handleListContacts, admin)

	if a.adminEnabled() {
		e.POST("/api/admin/login", a.handleAdminLogin)
		e.POST("/api/admin/logout", a.handleAdminLogout)
	}

	if !a.Config.Features.Blog {
		return
	}

	e.GET("/api/blogs", a.handleListBlogs)
	e.GET("/api/blogs/:slug", a.handleGetBlog)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/sitemap.xml", a.handleSitemap)

	g := e.Group("/api/admin/blogs", admin)
	g.GET("", a.handleAdminListBlogs)
	g.POST("", a.handleAdminCreateBlog)
	g.PUT("/:id", a.handleAdminUpdateBlog)
	g.DELETE("/:id", a.handleAdminDeleteBlog)

	e.POST("/api/upload-blog-image", a.handleImageUpload, admin)
}

// Start serves until the server is shut down.
func (a *App) Start() error {
	a.Logger.Info("http server listening", "addr", a.Config.Server.Addr)
	if err := a.Echo.Start(a.Config.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and for
// pending contact notifications, bounded by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		a.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.Logger.Warn("shutdown: pending contact notifications abandoned")
	}
	return err
}

// Close releases limiter and Redis resources. The database belongs to the
// caller.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
