package noc

import (
	"context"

	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/school"
)

// Report components. Lab and Tutorial rows report the shared lab/tutorial
// track but carry their own attendance figure.
const (
	ComponentTheory   = "Theory"
	ComponentLab      = "Lab"
	ComponentTutorial = "Tutorial"
)

// ReportRow is one component of one student's record, categorized for the
// caller: updatable under the caller's grants, or view-only.
type ReportRow struct {
	Record     StatusRecord   `json:"record"`
	Student    school.Student `json:"student"`
	Subject    school.Subject `json:"subject"`
	Component  string         `json:"component"`
	Attendance float64        `json:"attendance"`
	Status     string         `json:"status"`
	Updatable  bool           `json:"updatable"`
}

// TeacherReport lists a scope's records for a teacher. Any grant on the scope
// buys read access to all rows; each row is then marked updatable only under
// the matching capability (Theory division-wide, Lab/Tutorial per batch).
// A teacher with no grant on the scope sees nothing.
func (eng *engine) TeacherReport(ctx context.Context, teacherID, subjectID, divisionID int) ([]ReportRow, error) {
	access, err := eng.authoritySvc.ScopeAccess(ctx, teacherID, subjectID, divisionID)
	if err != nil {
		return nil, err
	}
	if !access.HasAny {
		return nil, authority.ErrPermissionDenied
	}

	sub, err := eng.schoolSvc.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	roster, err := eng.schoolSvc.Roster(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	bm := roster.BatchMap()
	studentsByID := make(map[int]school.Student, len(roster.Students))
	for _, st := range roster.Students {
		studentsByID[st.ID] = st
	}

	recs, err := eng.repo.QueryScopeRecords(ctx, subjectID, divisionID)
	if err != nil {
		return nil, err
	}

	var rows []ReportRow
	for _, rec := range recs {
		st := studentsByID[rec.StudentID]
		row := ReportRow{Record: rec, Student: st, Subject: sub}

		theory := row
		theory.Component = ComponentTheory
		theory.Attendance = rec.TheoryAttendance
		theory.Status = rec.NocStatus.Theory
		theory.Updatable = access.HasTheory
		rows = append(rows, theory)

		if !sub.HasLab && !sub.HasTutorial {
			continue
		}
		batch := bm.BatchFor(rec.StudentID)
		var batchID *int
		if batch != nil {
			batchID = &batch.ID
		}
		if sub.HasLab {
			lab := row
			lab.Component = ComponentLab
			lab.Attendance = rec.LabAttendance.Float64
			lab.Status = rec.NocStatus.LabTut
			lab.Updatable = access.CanUpdateBatch(batchID)
			rows = append(rows, lab)
		}
		if sub.HasTutorial {
			tut := row
			tut.Component = ComponentTutorial
			tut.Attendance = rec.TutorialAttendance.Float64
			tut.Status = rec.NocStatus.LabTut
			tut.Updatable = access.CanUpdateBatch(batchID)
			rows = append(rows, tut)
		}
	}
	return rows, nil
}

// StudentReport lists a student's own records across subjects; never updatable.
func (eng *engine) StudentReport(ctx context.Context, studentID int) ([]ReportRow, error) {
	st, err := eng.schoolSvc.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	recs, err := eng.repo.QueryStudentRecords(ctx, studentID)
	if err != nil {
		return nil, err
	}

	subjects := make(map[int]school.Subject)
	var rows []ReportRow
	for _, rec := range recs {
		sub, ok := subjects[rec.SubjectID]
		if !ok {
			if sub, err = eng.schoolSvc.GetSubject(ctx, rec.SubjectID); err != nil {
				return nil, err
			}
			subjects[rec.SubjectID] = sub
		}
		row := ReportRow{Record: rec, Student: st, Subject: sub}

		theory := row
		theory.Component = ComponentTheory
		theory.Attendance = rec.TheoryAttendance
		theory.Status = rec.NocStatus.Theory
		rows = append(rows, theory)

		if sub.HasLab {
			lab := row
			lab.Component = ComponentLab
			lab.Attendance = rec.LabAttendance.Float64
			lab.Status = rec.NocStatus.LabTut
			rows = append(rows, lab)
		}
		if sub.HasTutorial {
			tut := row
			tut.Component = ComponentTutorial
			tut.Attendance = rec.TutorialAttendance.Float64
			tut.Status = rec.NocStatus.LabTut
			rows = append(rows, tut)
		}
	}
	return rows, nil
}
