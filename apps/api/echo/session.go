package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/session"
)

type sessionApi struct {
	svc      session.Service
	validate *validator.Validate
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := sessionApi{svc: deps.SessionSvc, validate: deps.Validate}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.create, teacherMiddleware())
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id/status", api.updateStatus, teacherMiddleware())
	sg.POST("/:id/settle", api.settle, adminMiddleware())
}

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ses, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, ses)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	ses, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, ses)
}

func (api *sessionApi) query(ctx echo.Context) error {
	filter := &session.QueryFilter{
		ClassID:   ctx.QueryParam("class_id"),
		TeacherID: ctx.QueryParam("teacher_id"),
		StudentID: ctx.QueryParam("student_id"),
		Status:    ctx.QueryParam("status"),
	}

	sessions, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []session.ClassSession{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) updateStatus(ctx echo.Context) error {
	var data session.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	ses, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "updating session status")
	}
	return ctx.JSON(http.StatusOK, ses)
}

// settle retries the token settlement of a completed session that failed
// to settle, e.g. after the student topped up.
func (api *sessionApi) settle(ctx echo.Context) error {
	ses, err := api.svc.Settle(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "settling session")
	}
	return ctx.JSON(http.StatusOK, ses)
}
