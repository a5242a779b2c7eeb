package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/school"
)

type recordRow struct {
	ID                  int          `db:"id"`
	StudentID           int          `db:"student_id"`
	SubjectID           int          `db:"subject_id"`
	TheoryAttendance    float64      `db:"theory_attendance"`
	LabAttendance       null.Float64 `db:"lab_attendance"`
	TutorialAttendance  null.Float64 `db:"tutorial_attendance"`
	MarksCIE            null.Int     `db:"marks_cie"`
	PBLStatus           string       `db:"pbl_status"`
	PresentationStatus  string       `db:"presentation_status"`
	CertificationStatus string       `db:"certification_status"`
	TheoryNocStatus     string       `db:"theory_noc_status"`
	LabTutNocStatus     string       `db:"lab_tut_noc_status"`
	Reason              string       `db:"reason"`
	LastUpdated         time.Time    `db:"last_updated"`
}

func (r recordRow) unpack() noc.StatusRecord {
	return noc.StatusRecord{
		ID:                  r.ID,
		StudentID:           r.StudentID,
		SubjectID:           r.SubjectID,
		TheoryAttendance:    r.TheoryAttendance,
		LabAttendance:       r.LabAttendance,
		TutorialAttendance:  r.TutorialAttendance,
		MarksCIE:            r.MarksCIE,
		PBLStatus:           r.PBLStatus,
		PresentationStatus:  r.PresentationStatus,
		CertificationStatus: r.CertificationStatus,
		NocStatus:           noc.TrackStatuses{Theory: r.TheoryNocStatus, LabTut: r.LabTutNocStatus},
		Reason:              r.Reason,
		LastUpdated:         r.LastUpdated,
	}
}

type nocRepository struct {
	db *sqlx.DB
}

var _ noc.Repository = (*nocRepository)(nil)

func NewNocRepository(db *sql.DB) noc.Repository {
	return &nocRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *nocRepository) CreateMissingRecords(ctx context.Context, recs []noc.StatusRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	studentIDs := make([]int64, 0, len(recs))
	subjectIDs := make([]int64, 0, len(recs))
	for _, rec := range recs {
		studentIDs = append(studentIDs, int64(rec.StudentID))
		subjectIDs = append(subjectIDs, int64(rec.SubjectID))
	}

	query := `
INSERT INTO noc_records (student_id, subject_id)
SELECT unnest($1::int[]), unnest($2::int[])
ON CONFLICT (student_id, subject_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query, pq.Array(studentIDs), pq.Array(subjectIDs))
	if err != nil {
		return 0, errors.Wrap(err, "inserting compliance records")
	}
	created, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting created records")
	}
	return int(created), nil
}

func (repo *nocRepository) GetRecordByID(ctx context.Context, id int) (noc.StatusRecord, error) {
	var row recordRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM noc_records WHERE id = $1`, id); err != nil {
		return noc.StatusRecord{}, trapNoRowsErr(err, noc.ErrRecordNotFound, "getting compliance record")
	}
	return row.unpack(), nil
}

func (repo *nocRepository) GetRecord(ctx context.Context, studentID, subjectID int) (noc.StatusRecord, error) {
	var row recordRow
	query := `SELECT * FROM noc_records WHERE student_id = $1 AND subject_id = $2`
	if err := repo.db.GetContext(ctx, &row, query, studentID, subjectID); err != nil {
		return noc.StatusRecord{}, trapNoRowsErr(err, noc.ErrRecordNotFound, "getting compliance record")
	}
	return row.unpack(), nil
}

func (repo *nocRepository) QueryScopeRecords(ctx context.Context, subjectID, divisionID int) ([]noc.StatusRecord, error) {
	var rows []recordRow
	query := `
SELECT r.*
FROM noc_records r
JOIN students s ON s.id = r.student_id
WHERE r.subject_id = $1 AND s.division_id = $2
ORDER BY r.id`
	if err := repo.db.SelectContext(ctx, &rows, query, subjectID, divisionID); err != nil {
		return nil, errors.Wrap(err, "querying scope records")
	}
	return unpackRecords(rows), nil
}

func (repo *nocRepository) QueryStudentRecords(ctx context.Context, studentID int) ([]noc.StatusRecord, error) {
	var rows []recordRow
	query := `SELECT * FROM noc_records WHERE student_id = $1 ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, errors.Wrap(err, "querying student records")
	}
	return unpackRecords(rows), nil
}

func (repo *nocRepository) UpdateRecord(ctx context.Context, rec noc.StatusRecord) (noc.StatusRecord, error) {
	query := `
UPDATE noc_records
SET theory_attendance = $1, lab_attendance = $2, tutorial_attendance = $3, marks_cie = $4,
    pbl_status = $5, presentation_status = $6, certification_status = $7,
    theory_noc_status = $8, lab_tut_noc_status = $9, reason = $10, last_updated = $11
WHERE id = $12`
	res, err := repo.db.ExecContext(ctx, query,
		rec.TheoryAttendance, rec.LabAttendance, rec.TutorialAttendance, rec.MarksCIE,
		rec.PBLStatus, rec.PresentationStatus, rec.CertificationStatus,
		rec.NocStatus.Theory, rec.NocStatus.LabTut, rec.Reason, rec.LastUpdated, rec.ID)
	if err != nil {
		return noc.StatusRecord{}, errors.Wrap(err, "updating compliance record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return noc.StatusRecord{}, noc.ErrRecordNotFound
	}
	return rec, nil
}

func (repo *nocRepository) UpdateTrackStatuses(ctx context.Context, recs []noc.StatusRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
UPDATE noc_records
SET theory_noc_status = $1, lab_tut_noc_status = $2, reason = $3, last_updated = $4
WHERE id = $5`
	for _, rec := range recs {
		_, err = tx.ExecContext(ctx, query,
			rec.NocStatus.Theory, rec.NocStatus.LabTut, rec.Reason, rec.LastUpdated, rec.ID)
		if err != nil {
			return errors.Wrap(err, "updating track statuses")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func (repo *nocRepository) BulkSetTheoryAttendance(ctx context.Context, subjectID, divisionID int, pct float64) (int, error) {
	query := `
UPDATE noc_records
SET theory_attendance = $1, last_updated = now()
WHERE subject_id = $2
  AND student_id IN (SELECT id FROM students WHERE division_id = $3)`
	return repo.bulkExec(ctx, "bulk-setting theory attendance", query, pct, subjectID, divisionID)
}

func (repo *nocRepository) BulkSetCIE(ctx context.Context, subjectID, divisionID, marks int) (int, error) {
	query := `
UPDATE noc_records
SET marks_cie = $1, last_updated = now()
WHERE subject_id = $2
  AND student_id IN (SELECT id FROM students WHERE division_id = $3)`
	return repo.bulkExec(ctx, "bulk-setting CIE marks", query, marks, subjectID, divisionID)
}

func (repo *nocRepository) BulkSetLabAttendance(ctx context.Context, subjectID int, studentIDs []int, pct float64) (int, error) {
	query := `
UPDATE noc_records
SET lab_attendance = $1, last_updated = now()
WHERE subject_id = $2 AND student_id = ANY($3::int[])`
	return repo.bulkExec(ctx, "bulk-setting lab attendance", query, pct, subjectID, pq.Array(int64s(studentIDs)))
}

func (repo *nocRepository) BulkSetTutorialAttendance(ctx context.Context, subjectID int, studentIDs []int, pct float64) (int, error) {
	query := `
UPDATE noc_records
SET tutorial_attendance = $1, last_updated = now()
WHERE subject_id = $2 AND student_id = ANY($3::int[])`
	return repo.bulkExec(ctx, "bulk-setting tutorial attendance", query, pct, subjectID, pq.Array(int64s(studentIDs)))
}

func (repo *nocRepository) bulkExec(ctx context.Context, msg, query string, args ...interface{}) (int, error) {
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	touched, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return int(touched), nil
}

func (repo *nocRepository) QueryScopeAssignments(ctx context.Context, subjectID, divisionID int) ([]assignment.Assignment, error) {
	var rows []assignmentRow
	query := `SELECT * FROM assignments WHERE subject_id = $1 AND division_id = $2 ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query, subjectID, divisionID); err != nil {
		return nil, errors.Wrap(err, "querying scope assignments")
	}
	return unpackAssignments(rows), nil
}

func (repo *nocRepository) QuerySubmittedAssignmentIDs(ctx context.Context, studentIDs, assignmentIDs []int) (map[int]map[int]bool, error) {
	submitted := make(map[int]map[int]bool, len(studentIDs))
	for _, id := range studentIDs {
		submitted[id] = make(map[int]bool)
	}
	if len(studentIDs) == 0 || len(assignmentIDs) == 0 {
		return submitted, nil
	}

	var rows []struct {
		StudentID    int `db:"student_id"`
		AssignmentID int `db:"assignment_id"`
	}
	query := `
SELECT student_id, assignment_id
FROM submissions
WHERE student_id = ANY($1::int[]) AND assignment_id = ANY($2::int[])
  AND status IN ('submitted', 'late')`
	err := repo.db.SelectContext(ctx, &rows, query, pq.Array(int64s(studentIDs)), pq.Array(int64s(assignmentIDs)))
	if err != nil {
		return nil, errors.Wrap(err, "querying submitted assignment ids")
	}
	for _, r := range rows {
		if submitted[r.StudentID] == nil {
			submitted[r.StudentID] = make(map[int]bool)
		}
		submitted[r.StudentID][r.AssignmentID] = true
	}
	return submitted, nil
}

func (repo *nocRepository) QueryEnrolledStudents(ctx context.Context) ([]school.Student, error) {
	var rows []studentRow
	query := `SELECT * FROM students WHERE division_id IS NOT NULL ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying enrolled students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.unpack())
	}
	return students, nil
}

func unpackRecords(rows []recordRow) []noc.StatusRecord {
	recs := make([]noc.StatusRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.unpack())
	}
	return recs
}
