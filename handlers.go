package pubapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubapi/apperr"
	"github.com/eringen/pubapi/contact"
)

func (a *App) handleSubmitContact(c echo.Context) error {
	if a.contactLimiter != nil {
		ok, err := a.contactLimiter.Allow(c.Request().Context(), "contact:"+c.RealIP())
		if err != nil {
			a.Logger.Warn("contact rate limiter unavailable", "error", err)
		}
		if !ok {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many messages, try again later")
		}
	}

	var sub contact.Submission
	if err := c.Bind(&sub); err != nil {
		return apperr.Validation("invalid request body")
	}
	created, err := a.Contacts.Submit(c.Request().Context(), sub)
	if err != nil {
		return err
	}
	a.notify(c.Request().Context(), created)

	return c.JSON(http.StatusCreated, Envelope{
		Success: true,
		Message: "message sent",
		Data: map[string]any{
			"id":         created.ID,
			"name":       created.Name,
			"email":      created.Email,
			"message":    created.Message,
			"created_at": created.CreatedAt,
		},
	})
}

// notify hands the submission to the notifier in the background. Delivery
// problems are logged and never reach the client.
func (a *App) notify(ctx context.Context, created contact.Contact) {
	if a.notifier == nil {
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Mail.Timeout)
		defer cancel()
		if err := a.notifier.Notify(ctx, created); err != nil {
			a.Logger.Error("contact notification failed", "contact_id", created.ID, "error", err)
		}
	}()
}

func (a *App) handleListContacts(c echo.Context) error {
	contacts, err := a.Contacts.List(c.Request().Context())
	if err != nil {
		return err
	}
	return Respond(c, http.StatusOK, contacts)
}

func (a *App) handleListBlogs(c echo.Context) error {
	posts, err := a.Blogs.ListPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return Respond(c, http.StatusOK, posts)
}

func (a *App) handleGetBlog(c echo.Context) error {
	post, err := a.Blogs.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return Respond(c, http.StatusOK, post)
}

func (a *App) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, db, code := "ok", "up", http.StatusOK
	if err := a.DB.Ping(ctx); err != nil {
		a.Logger.Warn("health check: database unreachable", "error", err)
		status, db, code = "degraded", "down", http.StatusServiceUnavailable
	}
	return c.JSON(code, Envelope{
		Success: code == http.StatusOK,
		Data:    map[string]string{"status": status, "database": db},
	})
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Blogs.ListPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Blogs.ListPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}
