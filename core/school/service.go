package school

import (
	"context"
	"errors"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrDepartmentNotFound = errors.New("department not found")
	ErrDivisionNotFound   = errors.New("division not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrTeacherNotFound    = errors.New("teacher not found")
	ErrSubjectNotFound    = errors.New("subject not found")
	ErrSubjectExists      = errors.New("a subject with this name already exists for this department and year")
)

type (
	Repository interface {
		CreateDepartment(ctx context.Context, dep Department) (Department, error)
		GetDepartmentByID(ctx context.Context, id int) (Department, error)

		// CreateDivision persists the division and its batches in one transaction.
		CreateDivision(ctx context.Context, div Division, batchNames []string) (Division, error)
		GetDivisionByID(ctx context.Context, id int) (Division, error)
		// QueryDivisionBatches returns the division's batches ordered ascending by name.
		QueryDivisionBatches(ctx context.Context, divisionID int) ([]Batch, error)
		// QueryDivisionStudents returns the division's full roster ordered
		// ascending by roll number, ties broken by ID.
		QueryDivisionStudents(ctx context.Context, divisionID int) ([]Student, error)

		CreateStudent(ctx context.Context, st Student) (Student, error)
		GetStudentByID(ctx context.Context, id int) (Student, error)
		GetStudentByUserID(ctx context.Context, userID int) (Student, error)
		DeleteStudent(ctx context.Context, id int) error

		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		GetTeacherByID(ctx context.Context, id int) (Teacher, error)
		GetTeacherByUserID(ctx context.Context, userID int) (Teacher, error)

		CreateSubject(ctx context.Context, sub Subject) (Subject, error)
		GetSubjectByID(ctx context.Context, id int) (Subject, error)
		// QuerySubjects returns the subjects taught to a department's year.
		QuerySubjects(ctx context.Context, departmentID int, year string) ([]Subject, error)
	}

	Service interface {
		CreateDepartment(ctx context.Context, name string) (Department, error)
		CreateDivision(ctx context.Context, nd NewDivision) (Division, error)
		CreateStudent(ctx context.Context, ns NewStudent) (Student, error)
		CreateTeacher(ctx context.Context, nt NewTeacher) (Teacher, error)
		CreateSubject(ctx context.Context, ns NewSubject) (Subject, error)

		GetDivision(ctx context.Context, id int) (Division, error)
		GetStudent(ctx context.Context, id int) (Student, error)
		GetStudentByUserID(ctx context.Context, userID int) (Student, error)
		GetTeacherByUserID(ctx context.Context, userID int) (Teacher, error)
		GetSubject(ctx context.Context, id int) (Subject, error)
		SubjectsFor(ctx context.Context, divisionID int) ([]Subject, error)

		// Roster fetches a division's ordered batch list and roster once;
		// division-wide callers derive all batch lookups from it.
		Roster(ctx context.Context, divisionID int) (Roster, error)
		AssignBatch(ctx context.Context, studentID, divisionID int) (*Batch, error)

		DeleteStudent(ctx context.Context, id int) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Roster is a point-in-time snapshot of a division's batches and students, in
// the orderings the batch mapping is defined over.
type Roster struct {
	Division Division
	Batches  []Batch
	Students []Student
}

func (r Roster) BatchMap() BatchMap {
	return NewBatchMap(r.Batches, r.Students)
}

func (svc *service) CreateDepartment(ctx context.Context, name string) (Department, error) {
	name = core.CleanString(name)
	if name == "" {
		return Department{}, core.NewValidationError(errors.New("department name is required"),
			core.FieldError{Field: "name", Error: "this field is required"})
	}
	return svc.repo.CreateDepartment(ctx, Department{Name: name})
}

func (svc *service) CreateDivision(ctx context.Context, nd NewDivision) (Division, error) {
	if err := nd.Validate(); err != nil {
		return Division{}, err
	}
	if _, err := svc.repo.GetDepartmentByID(ctx, nd.DepartmentID); err != nil {
		return Division{}, err
	}
	div := Division{
		Name:         nd.Name,
		DepartmentID: nd.DepartmentID,
		Year:         nd.Year,
		AcademicYear: nd.AcademicYear,
	}
	return svc.repo.CreateDivision(ctx, div, nd.BatchNames())
}

func (svc *service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if err := ns.Validate(); err != nil {
		return Student{}, err
	}

	st := Student{
		UserID:     ns.UserID,
		Name:       ns.Name,
		RollNumber: ns.RollNumber,
		Year:       ns.Year,
	}
	if ns.DivisionID != 0 {
		if _, err := svc.repo.GetDivisionByID(ctx, ns.DivisionID); err != nil {
			return Student{}, err
		}
		st.DivisionID = null.IntFrom(ns.DivisionID)
	}
	return svc.repo.CreateStudent(ctx, st)
}

func (svc *service) CreateTeacher(ctx context.Context, nt NewTeacher) (Teacher, error) {
	if err := nt.Validate(); err != nil {
		return Teacher{}, err
	}
	return svc.repo.CreateTeacher(ctx, Teacher{UserID: nt.UserID, Name: nt.Name})
}

func (svc *service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	if err := ns.Validate(); err != nil {
		return Subject{}, err
	}

	sub := Subject{
		Name:                ns.Name,
		DepartmentID:        ns.DepartmentID,
		Year:                ns.Year,
		HasCIE:              ns.HasCIE,
		HasHomeAssignment:   ns.HasHomeAssignment,
		HasTutorial:         ns.HasTutorial,
		HasPBL:              ns.HasPBL,
		HasLab:              ns.HasLab,
		HasPresentation:     ns.HasPresentation,
		HasCertificate:      ns.HasCertificate,
		AttendanceThreshold: ns.AttendanceThreshold,
	}
	if sub.AttendanceThreshold == 0 {
		sub.AttendanceThreshold = 75
	}
	return svc.repo.CreateSubject(ctx, sub)
}

func (svc *service) GetDivision(ctx context.Context, id int) (Division, error) {
	return svc.repo.GetDivisionByID(ctx, id)
}

func (svc *service) GetStudent(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *service) GetStudentByUserID(ctx context.Context, userID int) (Student, error) {
	return svc.repo.GetStudentByUserID(ctx, userID)
}

func (svc *service) GetTeacherByUserID(ctx context.Context, userID int) (Teacher, error) {
	return svc.repo.GetTeacherByUserID(ctx, userID)
}

func (svc *service) GetSubject(ctx context.Context, id int) (Subject, error) {
	return svc.repo.GetSubjectByID(ctx, id)
}

// SubjectsFor returns the subjects applicable to a division: those taught to
// its department's year.
func (svc *service) SubjectsFor(ctx context.Context, divisionID int) ([]Subject, error) {
	div, err := svc.repo.GetDivisionByID(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QuerySubjects(ctx, div.DepartmentID, div.Year)
}

func (svc *service) Roster(ctx context.Context, divisionID int) (Roster, error) {
	div, err := svc.repo.GetDivisionByID(ctx, divisionID)
	if err != nil {
		return Roster{}, err
	}
	batches, err := svc.repo.QueryDivisionBatches(ctx, divisionID)
	if err != nil {
		return Roster{}, err
	}
	students, err := svc.repo.QueryDivisionStudents(ctx, divisionID)
	if err != nil {
		return Roster{}, err
	}
	return Roster{Division: div, Batches: batches, Students: students}, nil
}

func (svc *service) AssignBatch(ctx context.Context, studentID, divisionID int) (*Batch, error) {
	roster, err := svc.Roster(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	return roster.BatchMap().BatchFor(studentID), nil
}

func (svc *service) DeleteStudent(ctx context.Context, id int) error {
	if _, err := svc.repo.GetStudentByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteStudent(ctx, id)
}
