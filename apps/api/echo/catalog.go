package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/catalog"
)

type catalogApi struct {
	svc      catalog.Service
	validate *validator.Validate
}

func registerCatalogAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := catalogApi{svc: deps.CatalogSvc, validate: deps.Validate}

	sg := g.Group("/subjects")
	sg.GET("", api.query)
	sg.POST("", api.create, jwt, adminMiddleware())
	sg.GET("/:id", api.retrieve)
}

func (api *catalogApi) create(ctx echo.Context) error {
	var data catalog.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	sub, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *catalogApi) retrieve(ctx echo.Context) error {
	sub, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting subject")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *catalogApi) query(ctx echo.Context) error {
	subjects, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []catalog.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}
