package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/assignment"
)

type assignmentApi struct {
	svc      assignment.Service
	validate *validator.Validate
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := assignmentApi{svc: deps.AssignmentSvc, validate: deps.Validate}

	ag := g.Group("/assignments", jwt)
	ag.POST("", api.create, teacherMiddleware())
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/publish", api.publish, teacherMiddleware())
	ag.POST("/:id/close", api.close, teacherMiddleware())
	ag.POST("/:id/submit", api.submit, studentMiddleware())
	ag.GET("/:id/submissions", api.querySubmissions, teacherMiddleware())
	ag.GET("/:id/stats", api.stats, teacherMiddleware())

	sg := g.Group("/submissions", jwt)
	sg.POST("/:id/grade", api.grade, teacherMiddleware())
}

func (api *assignmentApi) create(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) query(ctx echo.Context) error {
	filter := &assignment.QueryFilter{
		TeacherID: ctx.QueryParam("teacher_id"),
		ClassID:   ctx.QueryParam("class_id"),
		SubjectID: ctx.QueryParam("subject_id"),
		Status:    ctx.QueryParam("status"),
	}
	if published := ctx.QueryParam("published"); published != "" {
		p := published == "true"
		filter.Published = &p
	}

	assignments, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *assignmentApi) publish(ctx echo.Context) error {
	a, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) close(ctx echo.Context) error {
	a, err := api.svc.Close(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data assignment.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	data.AssignmentID = ctx.Param("id")
	data.StudentID = claims.Subject // the token names the submitter, not the body
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *assignmentApi) grade(ctx echo.Context) error {
	var data assignment.GradeSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeSubmission")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	sub, err := api.svc.Grade(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *assignmentApi) querySubmissions(ctx echo.Context) error {
	subs, err := api.svc.GetSubmissions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []assignment.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *assignmentApi) stats(ctx echo.Context) error {
	stats, err := api.svc.GetStats(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assignment stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
