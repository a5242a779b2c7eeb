package sqlxrepos

import (
	"context"
	"database/sql"
	"net/mail"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/assignment"
)

type assignmentRow struct {
	ID           int         `db:"id"`
	Title        string      `db:"title"`
	SubjectID    int         `db:"subject_id"`
	TeacherID    int         `db:"teacher_id"`
	DivisionID   int         `db:"division_id"`
	BatchID      null.Int    `db:"batch_id"`
	Type         string      `db:"assignment_type"`
	Description  null.String `db:"description"`
	Instructions null.String `db:"instructions"`
	Deadline     time.Time   `db:"deadline"`
	MaxMarks     int         `db:"max_marks"`
	Status       string      `db:"status"`
	FilePath     null.String `db:"assignment_file_path"`
	SolutionPath null.String `db:"solution_file_path"`
	CreatedAt    time.Time   `db:"created_at"`
}

func (r assignmentRow) unpack() assignment.Assignment {
	return assignment.Assignment{
		ID:           r.ID,
		Title:        r.Title,
		SubjectID:    r.SubjectID,
		TeacherID:    r.TeacherID,
		DivisionID:   r.DivisionID,
		BatchID:      r.BatchID,
		Type:         r.Type,
		Description:  r.Description,
		Instructions: r.Instructions,
		Deadline:     r.Deadline,
		MaxMarks:     r.MaxMarks,
		Status:       r.Status,
		FilePath:     r.FilePath,
		SolutionPath: r.SolutionPath,
		CreatedAt:    r.CreatedAt,
	}
}

type submissionRow struct {
	ID           int          `db:"id"`
	AssignmentID int          `db:"assignment_id"`
	StudentID    int          `db:"student_id"`
	Content      null.String  `db:"content"`
	FilePath     null.String  `db:"file_path"`
	Marks        null.Float64 `db:"marks"`
	Score        null.Float64 `db:"score"`
	Feedback     null.String  `db:"feedback"`
	Status       string       `db:"status"`
	SubmittedAt  null.Time    `db:"submitted_at"`
}

func (r submissionRow) unpack() assignment.Submission {
	return assignment.Submission{
		ID:           r.ID,
		AssignmentID: r.AssignmentID,
		StudentID:    r.StudentID,
		Content:      r.Content,
		FilePath:     r.FilePath,
		Marks:        r.Marks,
		Score:        r.Score,
		Feedback:     r.Feedback,
		Status:       r.Status,
		SubmittedAt:  r.SubmittedAt,
	}
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *sql.DB) assignment.Repository {
	return &assignmentRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	query := `
INSERT INTO assignments (
    title, subject_id, teacher_id, division_id, batch_id,
    assignment_type, description, instructions, deadline, max_marks, status,
    assignment_file_path, solution_file_path, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`
	err := repo.db.GetContext(ctx, &a.ID, query,
		a.Title, a.SubjectID, a.TeacherID, a.DivisionID, a.BatchID,
		a.Type, a.Description, a.Instructions, a.Deadline, a.MaxMarks, a.Status,
		a.FilePath, a.SolutionPath, a.CreatedAt)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo *assignmentRepository) GetAssignmentByID(ctx context.Context, id int) (assignment.Assignment, error) {
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignments WHERE id = $1`, id); err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "getting assignment")
	}
	return row.unpack(), nil
}

func (repo *assignmentRepository) QueryAssignmentsBySubject(ctx context.Context, subjectID int) ([]assignment.Assignment, error) {
	var rows []assignmentRow
	query := `SELECT * FROM assignments WHERE subject_id = $1 ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, errors.Wrap(err, "querying assignments by subject")
	}
	return unpackAssignments(rows), nil
}

func (repo *assignmentRepository) QueryAssignmentsByTeacher(ctx context.Context, teacherID int) ([]assignment.Assignment, error) {
	var rows []assignmentRow
	query := `SELECT * FROM assignments WHERE teacher_id = $1 ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying assignments by teacher")
	}
	return unpackAssignments(rows), nil
}

func (repo *assignmentRepository) SetAssignmentStatus(ctx context.Context, id int, status string) error {
	if _, err := repo.db.ExecContext(ctx, `UPDATE assignments SET status = $1 WHERE id = $2`, status, id); err != nil {
		return errors.Wrap(err, "setting assignment status")
	}
	return nil
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id int) error {
	// submissions cascade
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return nil
}

func (repo *assignmentRepository) CreatePendingSubmissions(ctx context.Context, assignmentID int, studentIDs []int) error {
	if len(studentIDs) == 0 {
		return nil
	}
	query := `
INSERT INTO submissions (assignment_id, student_id, status)
SELECT $1, unnest($2::int[]), 'pending'
ON CONFLICT (assignment_id, student_id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, assignmentID, pq.Array(int64s(studentIDs))); err != nil {
		return errors.Wrap(err, "seeding pending submissions")
	}
	return nil
}

func (repo *assignmentRepository) GetSubmission(ctx context.Context, assignmentID, studentID int) (assignment.Submission, error) {
	var row submissionRow
	query := `SELECT * FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	if err := repo.db.GetContext(ctx, &row, query, assignmentID, studentID); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "getting submission")
	}
	return row.unpack(), nil
}

func (repo *assignmentRepository) GetSubmissionByID(ctx context.Context, id int) (assignment.Submission, error) {
	var row submissionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM submissions WHERE id = $1`, id); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "getting submission")
	}
	return row.unpack(), nil
}

func (repo *assignmentRepository) QueryAcceptedSubmissions(ctx context.Context, assignmentID int) ([]assignment.Submission, error) {
	var rows []submissionRow
	query := `
SELECT * FROM submissions
WHERE assignment_id = $1 AND status IN ('submitted', 'late')
ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query, assignmentID); err != nil {
		return nil, errors.Wrap(err, "querying accepted submissions")
	}
	subs := make([]assignment.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.unpack())
	}
	return subs, nil
}

func (repo *assignmentRepository) UpdateSubmission(ctx context.Context, sub assignment.Submission) (assignment.Submission, error) {
	query := `
UPDATE submissions
SET content = $1, file_path = $2, marks = $3, score = $4, feedback = $5, status = $6, submitted_at = $7
WHERE id = $8`
	res, err := repo.db.ExecContext(ctx, query,
		sub.Content, sub.FilePath, sub.Marks, sub.Score, sub.Feedback, sub.Status, sub.SubmittedAt, sub.ID)
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	return sub, nil
}

func (repo *assignmentRepository) QueryStudentEmails(ctx context.Context, studentIDs []int) ([]mail.Address, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
SELECT s.name, u.email
FROM students s
JOIN users u ON u.id = s.user_id
WHERE s.id IN (?)
ORDER BY s.id`, studentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building email query")
	}

	var rows []struct {
		Name  string `db:"name"`
		Email string `db:"email"`
	}
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying student emails")
	}
	addrs := make([]mail.Address, 0, len(rows))
	for _, r := range rows {
		addrs = append(addrs, mail.Address{Name: r.Name, Address: r.Email})
	}
	return addrs, nil
}

func unpackAssignments(rows []assignmentRow) []assignment.Assignment {
	asgs := make([]assignment.Assignment, 0, len(rows))
	for _, r := range rows {
		asgs = append(asgs, r.unpack())
	}
	return asgs
}
