package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

type schoolApi struct {
	svc     school.Service
	userSvc user.Service
	nocEng  noc.Engine
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc school.Service, userSvc user.Service, nocEng noc.Engine) {
	api := schoolApi{svc: svc, userSvc: userSvc, nocEng: nocEng}

	sg := g.Group("/school", jwt)
	admin := roleMiddleware(user.RoleAdmin)
	staff := roleMiddleware(user.RoleAdmin, user.RoleTeacher)

	sg.POST("/departments", api.createDepartment, admin)
	sg.POST("/divisions", api.createDivision, admin)
	sg.GET("/divisions/:id/roster", api.roster, staff)
	sg.POST("/subjects", api.createSubject, admin)
	sg.GET("/divisions/:id/subjects", api.divisionSubjects)

	sg.POST("/teachers", api.enrollTeacher, admin)
	sg.POST("/students", api.enrollStudent, admin)
	sg.DELETE("/students/:id", api.destroyStudent, admin)
	sg.GET("/students/me", api.studentProfile, roleMiddleware(user.RoleStudent))
}

// Handlers

func (api *schoolApi) createDepartment(ctx echo.Context) error {
	var data DepartmentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DepartmentRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	dep, err := api.svc.CreateDepartment(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating department")
	}
	return ctx.JSON(http.StatusCreated, dep)
}

func (api *schoolApi) createDivision(ctx echo.Context) error {
	var data school.NewDivision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDivision")
	}

	div, err := api.svc.CreateDivision(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating division")
	}
	return ctx.JSON(http.StatusCreated, div)
}

func (api *schoolApi) roster(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	roster, err := api.svc.Roster(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "fetching roster")
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *schoolApi) createSubject(ctx echo.Context) error {
	var data school.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}

	sub, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *schoolApi) divisionSubjects(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	subjects, err := api.svc.SubjectsFor(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying division subjects")
	}
	if subjects == nil {
		subjects = []school.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

// enrollTeacher creates the account and the teaching profile in one step.
func (api *schoolApi) enrollTeacher(ctx echo.Context) error {
	var data TeacherEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TeacherEnrollment")
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.createAccount(ctx, data.Email, data.Password, user.RoleTeacher)
	if err != nil {
		return err
	}

	t, err := api.svc.CreateTeacher(reqCtx, school.NewTeacher{UserID: usr.ID, Name: data.Name})
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, t)
}

// enrollStudent creates the account and the student profile, then backfills
// the student's compliance records so eligibility tracking starts immediately.
func (api *schoolApi) enrollStudent(ctx echo.Context) error {
	var data StudentEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentEnrollment")
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.createAccount(ctx, data.Email, data.Password, user.RoleStudent)
	if err != nil {
		return err
	}

	st, err := api.svc.CreateStudent(reqCtx, school.NewStudent{
		UserID:     usr.ID,
		Name:       data.Name,
		RollNumber: data.RollNumber,
		Year:       data.Year,
		DivisionID: data.DivisionID,
	})
	if err != nil {
		return errors.Wrap(err, "creating student")
	}

	if st.DivisionID.Valid {
		if _, err = api.nocEng.Backfill(reqCtx, st.ID); err != nil {
			return errors.Wrap(err, "backfilling compliance records")
		}
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	st, err := api.svc.GetStudent(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	if err = api.svc.DeleteStudent(reqCtx, st.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if err = api.userSvc.Delete(reqCtx, st.UserID); err != nil {
		return errors.Wrap(err, "deleting student account")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) studentProfile(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *schoolApi) createAccount(ctx echo.Context, email, password, role string) (user.User, error) {
	nu := user.NewUser{
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
		Role:            role,
	}
	if err := nu.Validate(api.userSvc); err != nil {
		return user.User{}, err
	}
	usr, err := api.userSvc.Create(ctx.Request().Context(), nu)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating account")
	}
	return usr, nil
}

// pathID parses the ":id" path parameter.
func pathID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "id", Error: "must be an integer"})
	}
	return id, nil
}

type (
	DepartmentRequest struct {
		Name string `json:"name" validate:"required"`
	}

	TeacherEnrollment struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}

	StudentEnrollment struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		Name       string `json:"name"`
		RollNumber string `json:"roll_number"`
		Year       string `json:"year"`
		DivisionID int    `json:"division_id"`
	}
)

func (dr *DepartmentRequest) Validate() error {
	dr.Name = core.CleanString(dr.Name)
	return core.Validate.Struct(dr)
}
