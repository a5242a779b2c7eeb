package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

type nocApi struct {
	eng          noc.Engine
	authoritySvc authority.Service
	schoolSvc    school.Service
}

func registerNocAPI(g *echo.Group, jwt echo.MiddlewareFunc, eng noc.Engine, authoritySvc authority.Service, schoolSvc school.Service) {
	api := nocApi{eng: eng, authoritySvc: authoritySvc, schoolSvc: schoolSvc}

	ng := g.Group("/noc", jwt)
	teacher := roleMiddleware(user.RoleTeacher)
	student := roleMiddleware(user.RoleStudent)
	admin := roleMiddleware(user.RoleAdmin)

	ng.GET("/report", api.teacherReport, teacher)
	ng.GET("/me", api.studentReport, student)
	ng.POST("/recompute", api.recompute, teacher)
	ng.POST("/backfill", api.backfill, admin)

	ng.PUT("/sce", api.updateSCE, teacher)
	ng.PUT("/attendance/theory", api.updateTheoryAttendance, teacher)
	ng.PUT("/attendance/lab", api.updateLabAttendance, teacher)
	ng.PUT("/attendance/tutorial", api.updateTutorialAttendance, teacher)

	ng.PUT("/bulk/attendance/theory", api.bulkTheoryAttendance, teacher)
	ng.PUT("/bulk/cie", api.bulkCIE, teacher)
	ng.PUT("/bulk/attendance/lab", api.bulkLabAttendance, teacher)
	ng.PUT("/bulk/attendance/tutorial", api.bulkTutorialAttendance, teacher)

	ng.PUT("/records/:id/status/:track", api.setTerminalStatus, teacher)
}

// Handlers

func (api *nocApi) teacherReport(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	scope, err := bindScope(ctx)
	if err != nil {
		return err
	}

	rows, err := api.eng.TeacherReport(ctx.Request().Context(), t.ID, scope.SubjectID, scope.DivisionID)
	if err != nil {
		return errors.Wrap(err, "building teacher report")
	}
	if rows == nil {
		rows = []noc.ReportRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *nocApi) studentReport(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	rows, err := api.eng.StudentReport(ctx.Request().Context(), st.ID)
	if err != nil {
		return errors.Wrap(err, "building student report")
	}
	if rows == nil {
		rows = []noc.ReportRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

// recompute re-evaluates a whole scope; any authority over it suffices.
func (api *nocApi) recompute(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	scope, err := bindScope(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	ok, err := api.authoritySvc.HasAnyAuthority(reqCtx, t.ID, scope.SubjectID, scope.DivisionID)
	if err != nil {
		return errors.Wrap(err, "checking scope authority")
	}
	if !ok {
		return authority.ErrPermissionDenied
	}

	changed, err := api.eng.RecomputeScope(reqCtx, scope.SubjectID, scope.DivisionID)
	if err != nil {
		return errors.Wrap(err, "recomputing scope")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"records_changed": changed})
}

func (api *nocApi) backfill(ctx echo.Context) error {
	res, err := api.eng.Backfill(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "backfilling compliance records")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *nocApi) updateSCE(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}

	var data noc.SCEUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SCEUpdate")
	}

	rec, err := api.eng.UpdateSCE(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating SCE components")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *nocApi) updateTheoryAttendance(ctx echo.Context) error {
	return api.updateAttendance(ctx, api.eng.UpdateTheoryAttendance)
}

func (api *nocApi) updateLabAttendance(ctx echo.Context) error {
	return api.updateAttendance(ctx, api.eng.UpdateLabAttendance)
}

func (api *nocApi) updateTutorialAttendance(ctx echo.Context) error {
	return api.updateAttendance(ctx, api.eng.UpdateTutorialAttendance)
}

func (api *nocApi) bulkTheoryAttendance(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}

	var data BulkScopeUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkScopeUpdate")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	touched, err := api.eng.BulkSetTheoryAttendance(ctx.Request().Context(), t.ID, data.SubjectID, data.DivisionID, data.Percent)
	if err != nil {
		return errors.Wrap(err, "bulk-setting theory attendance")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"records_touched": touched})
}

func (api *nocApi) bulkCIE(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}

	var data BulkCIEUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkCIEUpdate")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	touched, err := api.eng.BulkSetCIE(ctx.Request().Context(), t.ID, data.SubjectID, data.DivisionID, data.Marks)
	if err != nil {
		return errors.Wrap(err, "bulk-setting CIE marks")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"records_touched": touched})
}

func (api *nocApi) bulkLabAttendance(ctx echo.Context) error {
	return api.bulkBatchAttendance(ctx, api.eng.BulkSetLabAttendance)
}

func (api *nocApi) bulkTutorialAttendance(ctx echo.Context) error {
	return api.bulkBatchAttendance(ctx, api.eng.BulkSetTutorialAttendance)
}

func (api *nocApi) setTerminalStatus(ctx echo.Context) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	track, err := noc.ParseTrack(ctx.Param("track"))
	if err != nil {
		return err
	}

	var data noc.TerminalStatusUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TerminalStatusUpdate")
	}

	rec, err := api.eng.SetTerminalStatus(ctx.Request().Context(), t.ID, id, track, data)
	if err != nil {
		return errors.Wrap(err, "setting terminal status")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// helpers

func (api *nocApi) updateAttendance(
	ctx echo.Context,
	update func(ctx context.Context, teacherID int, au noc.AttendanceUpdate) (noc.StatusRecord, error),
) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}

	var data noc.AttendanceUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceUpdate")
	}

	rec, err := update(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *nocApi) bulkBatchAttendance(
	ctx echo.Context,
	update func(ctx context.Context, teacherID, subjectID, divisionID, batchID int, pct float64) (int, error),
) error {
	t, err := getContextTeacher(ctx, api.schoolSvc)
	if err != nil {
		return err
	}

	var data BulkBatchUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkBatchUpdate")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	touched, err := update(ctx.Request().Context(), t.ID, data.SubjectID, data.DivisionID, data.BatchID, data.Percent)
	if err != nil {
		return errors.Wrap(err, "bulk-setting batch attendance")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"records_touched": touched})
}

func bindScope(ctx echo.Context) (ScopeParams, error) {
	var scope ScopeParams
	if err := ctx.Bind(&scope); err != nil {
		return scope, errors.Wrap(err, "binding to ScopeParams")
	}
	if err := scope.Validate(); err != nil {
		return scope, err
	}
	return scope, nil
}

type (
	ScopeParams struct {
		SubjectID  int `query:"subject_id" json:"subject_id" validate:"required"`
		DivisionID int `query:"division_id" json:"division_id" validate:"required"`
	}

	BulkScopeUpdate struct {
		SubjectID  int     `json:"subject_id" validate:"required"`
		DivisionID int     `json:"division_id" validate:"required"`
		Percent    float64 `json:"percent" validate:"percent"`
	}

	BulkCIEUpdate struct {
		SubjectID  int `json:"subject_id" validate:"required"`
		DivisionID int `json:"division_id" validate:"required"`
		Marks      int `json:"marks" validate:"min=0"`
	}

	BulkBatchUpdate struct {
		SubjectID  int     `json:"subject_id" validate:"required"`
		DivisionID int     `json:"division_id" validate:"required"`
		BatchID    int     `json:"batch_id" validate:"required"`
		Percent    float64 `json:"percent" validate:"percent"`
	}
)

func (sp *ScopeParams) Validate() error     { return core.Validate.Struct(sp) }
func (bu *BulkScopeUpdate) Validate() error { return core.Validate.Struct(bu) }
func (bu *BulkCIEUpdate) Validate() error   { return core.Validate.Struct(bu) }
func (bu *BulkBatchUpdate) Validate() error { return core.Validate.Struct(bu) }
