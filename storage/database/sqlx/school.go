package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/school"
)

type divisionRow struct {
	ID           int    `db:"id"`
	Name         string `db:"name"`
	DepartmentID int    `db:"department_id"`
	Year         string `db:"year"`
	AcademicYear int    `db:"academic_year"`
}

func (r divisionRow) unpack() school.Division {
	return school.Division{
		ID:           r.ID,
		Name:         r.Name,
		DepartmentID: r.DepartmentID,
		Year:         r.Year,
		AcademicYear: r.AcademicYear,
	}
}

type batchRow struct {
	ID         int    `db:"id"`
	Name       string `db:"name"`
	DivisionID int    `db:"division_id"`
}

type teacherRow struct {
	ID     int    `db:"id"`
	UserID int    `db:"user_id"`
	Name   string `db:"name"`
}

type studentRow struct {
	ID         int      `db:"id"`
	UserID     int      `db:"user_id"`
	Name       string   `db:"name"`
	RollNumber string   `db:"roll_number"`
	Year       string   `db:"year"`
	DivisionID null.Int `db:"division_id"`
}

func (r studentRow) unpack() school.Student {
	return school.Student{
		ID:         r.ID,
		UserID:     r.UserID,
		Name:       r.Name,
		RollNumber: r.RollNumber,
		Year:       r.Year,
		DivisionID: r.DivisionID,
	}
}

type subjectRow struct {
	ID                  int    `db:"id"`
	Name                string `db:"name"`
	DepartmentID        int    `db:"department_id"`
	Year                string `db:"year"`
	HasCIE              bool   `db:"has_cie"`
	HasHomeAssignment   bool   `db:"has_home_assignment"`
	HasTutorial         bool   `db:"has_tutorial"`
	HasPBL              bool   `db:"has_pbl"`
	HasLab              bool   `db:"has_lab"`
	HasPresentation     bool   `db:"has_presentation"`
	HasCertificate      bool   `db:"has_certificate"`
	AttendanceThreshold int    `db:"attendance_threshold"`
}

func (r subjectRow) unpack() school.Subject {
	return school.Subject{
		ID:                  r.ID,
		Name:                r.Name,
		DepartmentID:        r.DepartmentID,
		Year:                r.Year,
		HasCIE:              r.HasCIE,
		HasHomeAssignment:   r.HasHomeAssignment,
		HasTutorial:         r.HasTutorial,
		HasPBL:              r.HasPBL,
		HasLab:              r.HasLab,
		HasPresentation:     r.HasPresentation,
		HasCertificate:      r.HasCertificate,
		AttendanceThreshold: r.AttendanceThreshold,
	}
}

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *sql.DB) school.Repository {
	return &schoolRepository{db: sqlx.NewDb(db, "postgres")}
}

func trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// int64s widens ids for pq array binding.
func int64s(ids []int) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}

func (repo *schoolRepository) CreateDepartment(ctx context.Context, dep school.Department) (school.Department, error) {
	query := `INSERT INTO departments (name) VALUES ($1) RETURNING id`
	if err := repo.db.GetContext(ctx, &dep.ID, query, dep.Name); err != nil {
		return school.Department{}, errors.Wrap(err, "inserting department")
	}
	return dep, nil
}

func (repo *schoolRepository) GetDepartmentByID(ctx context.Context, id int) (school.Department, error) {
	var dep school.Department
	err := repo.db.GetContext(ctx, &dep, `SELECT id, name FROM departments WHERE id = $1`, id)
	if err != nil {
		return school.Department{}, trapNoRowsErr(err, school.ErrDepartmentNotFound, "getting department")
	}
	return dep, nil
}

func (repo *schoolRepository) CreateDivision(ctx context.Context, div school.Division, batchNames []string) (school.Division, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return school.Division{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO divisions (name, department_id, year, academic_year)
VALUES ($1, $2, $3, $4)
RETURNING id`
	if err = tx.GetContext(ctx, &div.ID, query, div.Name, div.DepartmentID, div.Year, div.AcademicYear); err != nil {
		return school.Division{}, errors.Wrap(err, "inserting division")
	}
	for _, name := range batchNames {
		if _, err = tx.ExecContext(ctx, `INSERT INTO batches (name, division_id) VALUES ($1, $2)`, name, div.ID); err != nil {
			return school.Division{}, errors.Wrap(err, "inserting batch")
		}
	}

	if err = tx.Commit(); err != nil {
		return school.Division{}, errors.Wrap(err, "committing transaction")
	}
	return div, nil
}

func (repo *schoolRepository) GetDivisionByID(ctx context.Context, id int) (school.Division, error) {
	var row divisionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM divisions WHERE id = $1`, id); err != nil {
		return school.Division{}, trapNoRowsErr(err, school.ErrDivisionNotFound, "getting division")
	}
	return row.unpack(), nil
}

func (repo *schoolRepository) QueryDivisionBatches(ctx context.Context, divisionID int) ([]school.Batch, error) {
	var rows []batchRow
	query := `SELECT * FROM batches WHERE division_id = $1 ORDER BY name`
	if err := repo.db.SelectContext(ctx, &rows, query, divisionID); err != nil {
		return nil, errors.Wrap(err, "querying division batches")
	}
	batches := make([]school.Batch, 0, len(rows))
	for _, r := range rows {
		batches = append(batches, school.Batch{ID: r.ID, Name: r.Name, DivisionID: r.DivisionID})
	}
	return batches, nil
}

func (repo *schoolRepository) QueryDivisionStudents(ctx context.Context, divisionID int) ([]school.Student, error) {
	var rows []studentRow
	query := `SELECT * FROM students WHERE division_id = $1 ORDER BY roll_number, id`
	if err := repo.db.SelectContext(ctx, &rows, query, divisionID); err != nil {
		return nil, errors.Wrap(err, "querying division students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.unpack())
	}
	return students, nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, st school.Student) (school.Student, error) {
	query := `
INSERT INTO students (user_id, name, roll_number, year, division_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	err := repo.db.GetContext(ctx, &st.ID, query, st.UserID, st.Name, st.RollNumber, st.Year, st.DivisionID)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo *schoolRepository) GetStudentByID(ctx context.Context, id int) (school.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM students WHERE id = $1`, id); err != nil {
		return school.Student{}, trapNoRowsErr(err, school.ErrStudentNotFound, "getting student")
	}
	return row.unpack(), nil
}

func (repo *schoolRepository) GetStudentByUserID(ctx context.Context, userID int) (school.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM students WHERE user_id = $1`, userID); err != nil {
		return school.Student{}, trapNoRowsErr(err, school.ErrStudentNotFound, "getting student by user")
	}
	return row.unpack(), nil
}

func (repo *schoolRepository) DeleteStudent(ctx context.Context, id int) error {
	// submissions and compliance records cascade
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return nil
}

func (repo *schoolRepository) CreateTeacher(ctx context.Context, t school.Teacher) (school.Teacher, error) {
	query := `INSERT INTO teachers (user_id, name) VALUES ($1, $2) RETURNING id`
	if err := repo.db.GetContext(ctx, &t.ID, query, t.UserID, t.Name); err != nil {
		return school.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo *schoolRepository) GetTeacherByID(ctx context.Context, id int) (school.Teacher, error) {
	var row teacherRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM teachers WHERE id = $1`, id); err != nil {
		return school.Teacher{}, trapNoRowsErr(err, school.ErrTeacherNotFound, "getting teacher")
	}
	return school.Teacher{ID: row.ID, UserID: row.UserID, Name: row.Name}, nil
}

func (repo *schoolRepository) GetTeacherByUserID(ctx context.Context, userID int) (school.Teacher, error) {
	var row teacherRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM teachers WHERE user_id = $1`, userID); err != nil {
		return school.Teacher{}, trapNoRowsErr(err, school.ErrTeacherNotFound, "getting teacher by user")
	}
	return school.Teacher{ID: row.ID, UserID: row.UserID, Name: row.Name}, nil
}

func (repo *schoolRepository) CreateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM subjects WHERE name = $1 AND department_id = $2 AND year = $3)`
	if err := repo.db.GetContext(ctx, &exists, existsQuery, sub.Name, sub.DepartmentID, sub.Year); err != nil {
		return school.Subject{}, errors.Wrap(err, "checking subject uniqueness")
	}
	if exists {
		return school.Subject{}, school.ErrSubjectExists
	}

	query := `
INSERT INTO subjects (
    name, department_id, year,
    has_cie, has_home_assignment, has_tutorial, has_pbl, has_lab, has_presentation, has_certificate,
    attendance_threshold
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`
	err := repo.db.GetContext(ctx, &sub.ID, query,
		sub.Name, sub.DepartmentID, sub.Year,
		sub.HasCIE, sub.HasHomeAssignment, sub.HasTutorial, sub.HasPBL, sub.HasLab, sub.HasPresentation, sub.HasCertificate,
		sub.AttendanceThreshold)
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return sub, nil
}

func (repo *schoolRepository) GetSubjectByID(ctx context.Context, id int) (school.Subject, error) {
	var row subjectRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM subjects WHERE id = $1`, id); err != nil {
		return school.Subject{}, trapNoRowsErr(err, school.ErrSubjectNotFound, "getting subject")
	}
	return row.unpack(), nil
}

func (repo *schoolRepository) QuerySubjects(ctx context.Context, departmentID int, year string) ([]school.Subject, error) {
	var rows []subjectRow
	query := `SELECT * FROM subjects WHERE department_id = $1 AND year = $2 ORDER BY name`
	if err := repo.db.SelectContext(ctx, &rows, query, departmentID, year); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, r.unpack())
	}
	return subjects, nil
}
