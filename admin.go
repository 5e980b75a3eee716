package pubapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubapi/apperr"
	"github.com/eringen/pubapi/blog"
)

func (a *App) handleAdminListBlogs(c echo.Context) error {
	posts, err := a.Blogs.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return Respond(c, http.StatusOK, posts)
}

func (a *App) handleAdminCreateBlog(c echo.Context) error {
	var in blog.Input
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	created, err := a.Blogs.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, Envelope{Success: true, Message: "blog created", Data: created})
}

func (a *App) handleAdminUpdateBlog(c echo.Context) error {
	id, err := blogID(c)
	if err != nil {
		return err
	}
	var in blog.Input
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := a.Blogs.Update(c.Request().Context(), id, in); err != nil {
		return err
	}
	return RespondMessage(c, http.StatusOK, "blog updated")
}

func (a *App) handleAdminDeleteBlog(c echo.Context) error {
	id, err := blogID(c)
	if err != nil {
		return err
	}
	if err := a.Blogs.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return RespondMessage(c, http.StatusOK, "blog deleted")
}

func blogID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid blog id")
	}
	return id, nil
}

type loginRequest struct {
	Password string `json:"password" form:"password"`
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.Config.Admin.Password)) != 1 {
		a.loginLimiter.Record(ip)
		a.Logger.Warn("admin login failed", "remote_ip", ip)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	return RespondMessage(c, http.StatusOK, "logged in")
}

func (a *App) handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return RespondMessage(c, http.StatusOK, "logged out")
}
