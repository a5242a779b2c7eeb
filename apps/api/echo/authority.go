package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

type authorityApi struct {
	svc       authority.Service
	schoolSvc school.Service
}

func registerAuthorityAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc authority.Service, schoolSvc school.Service) {
	api := authorityApi{svc: svc, schoolSvc: schoolSvc}

	ag := g.Group("/grants", jwt)
	admin := roleMiddleware(user.RoleAdmin)

	ag.POST("", api.create, admin)
	ag.DELETE("/:id", api.destroy, admin)
	ag.GET("/mine", api.mine, roleMiddleware(user.RoleTeacher))
}

// Handlers

func (api *authorityApi) create(ctx echo.Context) error {
	var data authority.NewGrant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrant")
	}

	g, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating grant")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *authorityApi) destroy(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting grant")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authorityApi) mine(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	grants, err := api.svc.TeacherGrants(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "querying teacher grants")
	}
	if grants == nil {
		grants = []authority.Grant{}
	}
	return ctx.JSON(http.StatusOK, grants)
}
