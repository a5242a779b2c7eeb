package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

type assignmentApi struct {
	svc       assignment.Service
	schoolSvc school.Service
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc assignment.Service, schoolSvc school.Service) {
	api := assignmentApi{svc: svc, schoolSvc: schoolSvc}

	ag := g.Group("/assignments", jwt)
	teacher := roleMiddleware(user.RoleTeacher)

	ag.POST("", api.create, teacher)
	ag.GET("", api.queryMine, teacher)
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/publish", api.publish, teacher)
	ag.DELETE("/:id", api.destroy, teacher)
	ag.POST("/:id/submissions", api.submit, roleMiddleware(user.RoleStudent))

	sg := g.Group("/submissions", jwt)
	sg.PUT("/:id/grade", api.grade, teacher)
}

// Handlers

func (api *assignmentApi) create(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}

	var data assignment.NewAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}

	a, err := api.svc.Create(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assignmentApi) queryMine(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	asgs, err := api.svc.QueryByTeacher(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if asgs == nil {
		asgs = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asgs)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) publish(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.Publish(ctx.Request().Context(), t.ID, id)
	if err != nil {
		return errors.Wrap(err, "publishing assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), t.ID, id); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data assignment.NewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), st, id, data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *assignmentApi) grade(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data assignment.GradeUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeUpdate")
	}

	sub, err := api.svc.Grade(ctx.Request().Context(), t.ID, id, data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}
