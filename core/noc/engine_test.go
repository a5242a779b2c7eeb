package noc_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/school"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

var ctx = context.Background()

func TestMain(m *testing.M) {
	validate := validator.New()
	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	os.Exit(m.Run())
}

type fixture struct {
	t *testing.T

	schoolSvc school.Service
	authSvc   authority.Service
	asgRepo   assignment.Repository
	eng       noc.Engine

	division school.Division
	batches  []school.Batch
	subject  school.Subject
	students []school.Student

	theoryTeacher school.Teacher // Theory grant on the whole division
	labTeacher    school.Teacher // Lab grant on the first batch only
}

// setup provisions a division with two batches and numStudents students, one
// subject with the given flags, a theory teacher and a lab teacher, and
// backfills the compliance records.
func setup(t *testing.T, numStudents int, subjectFlags school.NewSubject) *fixture {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	schoolSvc := school.NewService(inmemdb.NewSchoolRepository(db))
	authSvc := authority.NewService(inmemdb.NewAuthorityRepository(db), schoolSvc)
	conf := &core.Config{NOC: core.NOCConfig{AttendanceLimit: 75.0, MinCorrectness: 0.70, PlagiarismLimit: 0.80}}
	eng := noc.NewEngine(inmemdb.NewNocRepository(db), schoolSvc, authSvc, conf)

	f := &fixture{
		t:         t,
		schoolSvc: schoolSvc,
		authSvc:   authSvc,
		asgRepo:   inmemdb.NewAssignmentRepository(db),
		eng:       eng,
	}

	dep, err := schoolSvc.CreateDepartment(ctx, "Computer Engineering")
	if err != nil {
		t.Fatalf("creating department: %v", err)
	}
	f.division, err = schoolSvc.CreateDivision(ctx, school.NewDivision{
		Name:         "A",
		DepartmentID: dep.ID,
		Year:         school.YearSecond,
		AcademicYear: 2026,
		NumBatches:   2,
	})
	if err != nil {
		t.Fatalf("creating division: %v", err)
	}

	subjectFlags.Name = "Data Structures"
	subjectFlags.DepartmentID = dep.ID
	subjectFlags.Year = school.YearSecond
	f.subject, err = schoolSvc.CreateSubject(ctx, subjectFlags)
	if err != nil {
		t.Fatalf("creating subject: %v", err)
	}

	for i := 1; i <= numStudents; i++ {
		st, err := schoolSvc.CreateStudent(ctx, school.NewStudent{
			UserID:     i,
			Name:       fmt.Sprintf("Student %d", i),
			RollNumber: fmt.Sprintf("r%02d", i),
			Year:       school.YearSecond,
			DivisionID: f.division.ID,
		})
		if err != nil {
			t.Fatalf("creating student: %v", err)
		}
		f.students = append(f.students, st)
	}

	roster, err := schoolSvc.Roster(ctx, f.division.ID)
	if err != nil {
		t.Fatalf("fetching roster: %v", err)
	}
	f.batches = roster.Batches

	f.theoryTeacher, err = schoolSvc.CreateTeacher(ctx, school.NewTeacher{UserID: 1000, Name: "Prof. Theory"})
	if err != nil {
		t.Fatalf("creating teacher: %v", err)
	}
	if _, err = authSvc.Create(ctx, authority.NewGrant{
		TeacherID:  f.theoryTeacher.ID,
		SubjectID:  f.subject.ID,
		DivisionID: f.division.ID,
		Capability: authority.CapabilityTheory,
	}); err != nil {
		t.Fatalf("granting theory authority: %v", err)
	}

	f.labTeacher, err = schoolSvc.CreateTeacher(ctx, school.NewTeacher{UserID: 1001, Name: "Prof. Lab"})
	if err != nil {
		t.Fatalf("creating teacher: %v", err)
	}
	if _, err = authSvc.Create(ctx, authority.NewGrant{
		TeacherID:  f.labTeacher.ID,
		SubjectID:  f.subject.ID,
		DivisionID: f.division.ID,
		BatchID:    f.batches[0].ID,
		Capability: authority.CapabilityLab,
	}); err != nil {
		t.Fatalf("granting lab authority: %v", err)
	}

	if _, err = eng.Backfill(ctx); err != nil {
		t.Fatalf("backfilling records: %v", err)
	}
	return f
}

// addAssignment creates a published assignment directly in storage.
func (f *fixture) addAssignment(typ string, batchID int) assignment.Assignment {
	f.t.Helper()
	a := assignment.Assignment{
		Title:      typ + " work",
		SubjectID:  f.subject.ID,
		TeacherID:  f.theoryTeacher.ID,
		DivisionID: f.division.ID,
		Type:       typ,
		Deadline:   time.Now().Add(72 * time.Hour).UTC(),
		MaxMarks:   10,
		Status:     assignment.StatusPublished,
		CreatedAt:  time.Now().UTC(),
	}
	if batchID != 0 {
		a.BatchID = null.IntFrom(batchID)
	}
	a, err := f.asgRepo.CreateAssignment(ctx, a)
	if err != nil {
		f.t.Fatalf("creating assignment: %v", err)
	}
	return a
}

// submit records accepted submissions for the given students.
func (f *fixture) submit(a assignment.Assignment, studentIDs ...int) {
	f.t.Helper()
	if err := f.asgRepo.CreatePendingSubmissions(ctx, a.ID, studentIDs); err != nil {
		f.t.Fatalf("seeding submissions: %v", err)
	}
	for _, id := range studentIDs {
		sub, err := f.asgRepo.GetSubmission(ctx, a.ID, id)
		if err != nil {
			f.t.Fatalf("fetching submission: %v", err)
		}
		sub.Content = null.StringFrom("answer")
		sub.Status = assignment.SubmissionSubmitted
		sub.SubmittedAt = null.TimeFrom(time.Now().UTC())
		if _, err = f.asgRepo.UpdateSubmission(ctx, sub); err != nil {
			f.t.Fatalf("updating submission: %v", err)
		}
	}
}

func (f *fixture) record(studentID int) noc.StatusRecord {
	f.t.Helper()
	rec, err := f.eng.GetRecord(ctx, studentID, f.subject.ID)
	if err != nil {
		f.t.Fatalf("fetching record: %v", err)
	}
	return rec
}

func TestRecomputeScopeIsIdempotent(t *testing.T) {
	f := setup(t, 4, school.NewSubject{HasCIE: true})

	if _, err := f.eng.BulkSetTheoryAttendance(ctx, f.theoryTeacher.ID, f.subject.ID, f.division.ID, 80); err != nil {
		t.Fatalf("bulk attendance: %v", err)
	}
	if _, err := f.eng.BulkSetCIE(ctx, f.theoryTeacher.ID, f.subject.ID, f.division.ID, 18); err != nil {
		t.Fatalf("bulk CIE: %v", err)
	}

	changed, err := f.eng.RecomputeScope(ctx, f.subject.ID, f.division.ID)
	if err != nil {
		t.Fatalf("RecomputeScope() error = %v", err)
	}
	if changed != 4 {
		t.Errorf("first run changed %d records, want 4", changed)
	}

	changed, err = f.eng.RecomputeScope(ctx, f.subject.ID, f.division.ID)
	if err != nil {
		t.Fatalf("RecomputeScope() error = %v", err)
	}
	if changed != 0 {
		t.Errorf("second run changed %d records, want 0", changed)
	}

	rec := f.record(f.students[0].ID)
	if rec.NocStatus.Theory != noc.StatusCompleted {
		t.Errorf("theory status = %q, want %q", rec.NocStatus.Theory, noc.StatusCompleted)
	}
	if rec.NocStatus.LabTut != noc.StatusCompleted {
		t.Errorf("lab/tutorial status = %q, want %q", rec.NocStatus.LabTut, noc.StatusCompleted)
	}
}

// A student at 60% attendance with every theory requirement met stays Pending
// until the remedial Defaulter assignment is completed, and raising attendance
// afterwards never reverts the Completed status.
func TestDefaulterOverride(t *testing.T) {
	f := setup(t, 2, school.NewSubject{HasCIE: true})
	st := f.students[0]

	theoryWork := f.addAssignment(assignment.TypeTheory, 0)
	f.submit(theoryWork, st.ID)
	if _, err := f.eng.BulkSetCIE(ctx, f.theoryTeacher.ID, f.subject.ID, f.division.ID, 15); err != nil {
		t.Fatalf("bulk CIE: %v", err)
	}

	rec, err := f.eng.UpdateTheoryAttendance(ctx, f.theoryTeacher.ID, noc.AttendanceUpdate{
		StudentID: st.ID, SubjectID: f.subject.ID, Percent: 60,
	})
	if err != nil {
		t.Fatalf("UpdateTheoryAttendance() error = %v", err)
	}
	if rec.NocStatus.Theory != noc.StatusPending {
		t.Fatalf("theory status = %q, want %q (attendance below limit, no defaulter work)",
			rec.NocStatus.Theory, noc.StatusPending)
	}

	// completing the Defaulter assignment lifts the attendance shortfall
	defaulterWork := f.addAssignment(assignment.TypeDefaulter, 0)
	f.submit(defaulterWork, st.ID)
	rec, err = f.eng.RecomputeOne(ctx, st.ID, f.subject.ID)
	if err != nil {
		t.Fatalf("RecomputeOne() error = %v", err)
	}
	if rec.NocStatus.Theory != noc.StatusCompleted {
		t.Fatalf("theory status = %q, want %q after defaulter work", rec.NocStatus.Theory, noc.StatusCompleted)
	}

	// monotonicity: raising attendance above the limit keeps it Completed
	rec, err = f.eng.UpdateTheoryAttendance(ctx, f.theoryTeacher.ID, noc.AttendanceUpdate{
		StudentID: st.ID, SubjectID: f.subject.ID, Percent: 90,
	})
	if err != nil {
		t.Fatalf("UpdateTheoryAttendance() error = %v", err)
	}
	if rec.NocStatus.Theory != noc.StatusCompleted {
		t.Errorf("theory status = %q, want %q after raising attendance", rec.NocStatus.Theory, noc.StatusCompleted)
	}
}

// Once a track is Granted or Refused, no sequence of edits plus recomputes
// moves it.
func TestTerminalStatusLocksTrack(t *testing.T) {
	f := setup(t, 2, school.NewSubject{HasCIE: true})
	st := f.students[0]

	rec := f.record(st.ID)
	rec, err := f.eng.SetTerminalStatus(ctx, f.theoryTeacher.ID, rec.ID, noc.TrackTheory, noc.TerminalStatusUpdate{
		Status: noc.StatusGranted,
		Reason: "cleared by the department head",
	})
	if err != nil {
		t.Fatalf("SetTerminalStatus() error = %v", err)
	}
	if rec.NocStatus.Theory != noc.StatusGranted {
		t.Fatalf("theory status = %q, want %q", rec.NocStatus.Theory, noc.StatusGranted)
	}

	// eligibility is clearly false (no CIE, no attendance) yet the track holds
	if _, err = f.eng.RecomputeScope(ctx, f.subject.ID, f.division.ID); err != nil {
		t.Fatalf("RecomputeScope() error = %v", err)
	}
	if got := f.record(st.ID).NocStatus.Theory; got != noc.StatusGranted {
		t.Errorf("theory status after recompute = %q, want %q", got, noc.StatusGranted)
	}

	// an explicit authorized action may still flip terminal to terminal
	rec, err = f.eng.SetTerminalStatus(ctx, f.theoryTeacher.ID, rec.ID, noc.TrackTheory, noc.TerminalStatusUpdate{
		Status: noc.StatusRefused,
		Reason: "disciplinary action",
	})
	if err != nil {
		t.Fatalf("SetTerminalStatus() error = %v", err)
	}
	if rec.NocStatus.Theory != noc.StatusRefused {
		t.Errorf("theory status = %q, want %q", rec.NocStatus.Theory, noc.StatusRefused)
	}
}

func TestSetTerminalStatusRejectsNonTerminal(t *testing.T) {
	f := setup(t, 1, school.NewSubject{})
	rec := f.record(f.students[0].ID)

	for _, status := range []string{noc.StatusPending, noc.StatusCompleted, "Approved", ""} {
		if _, err := f.eng.SetTerminalStatus(ctx, f.theoryTeacher.ID, rec.ID, noc.TrackTheory,
			noc.TerminalStatusUpdate{Status: status}); err == nil {
			t.Errorf("SetTerminalStatus(%q) accepted a non-terminal status", status)
		}
	}
}

func TestSetTerminalStatusAuthority(t *testing.T) {
	f := setup(t, 4, school.NewSubject{HasLab: true}) // batchSize=2: students 1,2 in batch 1
	inBatch := f.students[0]
	outOfBatch := f.students[3]

	// a lab-only teacher cannot finalize the theory track
	rec := f.record(inBatch.ID)
	if _, err := f.eng.SetTerminalStatus(ctx, f.labTeacher.ID, rec.ID, noc.TrackTheory,
		noc.TerminalStatusUpdate{Status: noc.StatusGranted}); err != authority.ErrPermissionDenied {
		t.Errorf("theory track: error = %v, want %v", err, authority.ErrPermissionDenied)
	}

	// but may finalize the lab/tutorial track for their own batch
	rec, err := f.eng.SetTerminalStatus(ctx, f.labTeacher.ID, rec.ID, noc.TrackLabTut,
		noc.TerminalStatusUpdate{Status: noc.StatusGranted})
	if err != nil {
		t.Fatalf("lab/tutorial track: error = %v", err)
	}
	if rec.NocStatus.LabTut != noc.StatusGranted {
		t.Errorf("lab/tutorial status = %q, want %q", rec.NocStatus.LabTut, noc.StatusGranted)
	}

	// and not for a student of another batch
	other := f.record(outOfBatch.ID)
	if _, err = f.eng.SetTerminalStatus(ctx, f.labTeacher.ID, other.ID, noc.TrackLabTut,
		noc.TerminalStatusUpdate{Status: noc.StatusGranted}); err != authority.ErrPermissionDenied {
		t.Errorf("other batch: error = %v, want %v", err, authority.ErrPermissionDenied)
	}
}

// An SCE edit re-runs the evaluation immediately: the returned record reflects
// the new statuses without a bulk recompute.
func TestUpdateSCERecomputesImmediately(t *testing.T) {
	f := setup(t, 2, school.NewSubject{HasPBL: true})
	st := f.students[0] // first batch; the lab teacher may edit SCE fields

	completed := noc.SCECompleted
	rec, err := f.eng.UpdateSCE(ctx, f.labTeacher.ID, noc.SCEUpdate{
		StudentID: st.ID,
		SubjectID: f.subject.ID,
		PBLStatus: &completed,
	})
	if err != nil {
		t.Fatalf("UpdateSCE() error = %v", err)
	}
	if rec.PBLStatus != noc.SCECompleted {
		t.Errorf("PBL status = %q, want %q", rec.PBLStatus, noc.SCECompleted)
	}
	if rec.NocStatus.LabTut != noc.StatusCompleted {
		t.Errorf("lab/tutorial status = %q, want %q", rec.NocStatus.LabTut, noc.StatusCompleted)
	}
	// theory needs nothing for this subject and completes as well
	if rec.NocStatus.Theory != noc.StatusCompleted {
		t.Errorf("theory status = %q, want %q", rec.NocStatus.Theory, noc.StatusCompleted)
	}
}

func TestUpdateSCEAuthority(t *testing.T) {
	f := setup(t, 4, school.NewSubject{HasPBL: true, HasCIE: true})
	outOfBatch := f.students[3]

	completed := noc.SCECompleted
	if _, err := f.eng.UpdateSCE(ctx, f.labTeacher.ID, noc.SCEUpdate{
		StudentID: outOfBatch.ID,
		SubjectID: f.subject.ID,
		PBLStatus: &completed,
	}); err != authority.ErrPermissionDenied {
		t.Errorf("SCE edit outside batch: error = %v, want %v", err, authority.ErrPermissionDenied)
	}

	// CIE marks are theory-side: the lab teacher is denied
	marks := 17
	if _, err := f.eng.UpdateSCE(ctx, f.labTeacher.ID, noc.SCEUpdate{
		StudentID: f.students[0].ID,
		SubjectID: f.subject.ID,
		MarksCIE:  &marks,
	}); err != authority.ErrPermissionDenied {
		t.Errorf("CIE edit by lab teacher: error = %v, want %v", err, authority.ErrPermissionDenied)
	}
	if _, err := f.eng.UpdateSCE(ctx, f.theoryTeacher.ID, noc.SCEUpdate{
		StudentID: f.students[0].ID,
		SubjectID: f.subject.ID,
		MarksCIE:  &marks,
	}); err != nil {
		t.Errorf("CIE edit by theory teacher: error = %v", err)
	}
}

func TestBackfillIsIdempotent(t *testing.T) {
	f := setup(t, 3, school.NewSubject{})

	// setup already backfilled once
	res, err := f.eng.Backfill(ctx)
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	if res.RecordsCreated != 0 {
		t.Errorf("re-run created %d records, want 0", res.RecordsCreated)
	}
	if res.StudentsProcessed != 3 {
		t.Errorf("processed %d students, want 3", res.StudentsProcessed)
	}
}

func TestDefaulterStudentIDs(t *testing.T) {
	f := setup(t, 3, school.NewSubject{})

	for i, pct := range []float64{60, 75, 90} {
		if _, err := f.eng.UpdateTheoryAttendance(ctx, f.theoryTeacher.ID, noc.AttendanceUpdate{
			StudentID: f.students[i].ID, SubjectID: f.subject.ID, Percent: pct,
		}); err != nil {
			t.Fatalf("setting attendance: %v", err)
		}
	}

	ids, err := f.eng.DefaulterStudentIDs(ctx, f.subject.ID, f.division.ID)
	if err != nil {
		t.Fatalf("DefaulterStudentIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != f.students[0].ID {
		t.Errorf("DefaulterStudentIDs() = %v, want [%d]", ids, f.students[0].ID)
	}
}

func TestBulkSetLabAttendanceTouchesOnlyBatchMembers(t *testing.T) {
	f := setup(t, 4, school.NewSubject{HasLab: true}) // batchSize=2

	count, err := f.eng.BulkSetLabAttendance(ctx, f.labTeacher.ID, f.subject.ID, f.division.ID, f.batches[0].ID, 85)
	if err != nil {
		t.Fatalf("BulkSetLabAttendance() error = %v", err)
	}
	if count != 2 {
		t.Errorf("updated %d records, want 2", count)
	}

	if got := f.record(f.students[0].ID).LabAttendance.Float64; got != 85 {
		t.Errorf("batch member lab attendance = %v, want 85", got)
	}
	if got := f.record(f.students[3].ID).LabAttendance; got.Valid {
		t.Errorf("outside-batch lab attendance = %v, want unset", got.Float64)
	}

	// the lab teacher holds no grant on the second batch
	if _, err = f.eng.BulkSetLabAttendance(ctx, f.labTeacher.ID, f.subject.ID, f.division.ID, f.batches[1].ID, 85); err != authority.ErrPermissionDenied {
		t.Errorf("other batch: error = %v, want %v", err, authority.ErrPermissionDenied)
	}
}

func TestTeacherReportCategorizesRows(t *testing.T) {
	f := setup(t, 4, school.NewSubject{HasLab: true}) // 4 students, batchSize=2

	rows, err := f.eng.TeacherReport(ctx, f.labTeacher.ID, f.subject.ID, f.division.ID)
	if err != nil {
		t.Fatalf("TeacherReport() error = %v", err)
	}
	// one theory row and one lab row per student
	if len(rows) != 8 {
		t.Fatalf("got %d rows, want 8", len(rows))
	}
	for _, row := range rows {
		switch row.Component {
		case noc.ComponentTheory:
			if row.Updatable {
				t.Errorf("theory row for student %d updatable by a lab-only teacher", row.Student.ID)
			}
		case noc.ComponentLab:
			inFirstBatch := row.Student.ID == f.students[0].ID || row.Student.ID == f.students[1].ID
			if row.Updatable != inFirstBatch {
				t.Errorf("lab row for student %d: updatable = %v, want %v", row.Student.ID, row.Updatable, inFirstBatch)
			}
		default:
			t.Errorf("unexpected component %q", row.Component)
		}
	}

	// a teacher without any grant on the scope sees nothing
	stranger, err := f.schoolSvc.CreateTeacher(ctx, school.NewTeacher{UserID: 1002, Name: "Prof. Stranger"})
	if err != nil {
		t.Fatalf("creating teacher: %v", err)
	}
	if _, err = f.eng.TeacherReport(ctx, stranger.ID, f.subject.ID, f.division.ID); err != authority.ErrPermissionDenied {
		t.Errorf("stranger report: error = %v, want %v", err, authority.ErrPermissionDenied)
	}
}

func TestStudentReport(t *testing.T) {
	f := setup(t, 2, school.NewSubject{HasLab: true, HasTutorial: true})
	st := f.students[0]

	rows, err := f.eng.StudentReport(ctx, st.ID)
	if err != nil {
		t.Fatalf("StudentReport() error = %v", err)
	}
	if len(rows) != 3 { // theory + lab + tutorial for the single subject
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, row := range rows {
		if row.Updatable {
			t.Errorf("%s row is updatable in the student view", row.Component)
		}
		if row.Student.ID != st.ID {
			t.Errorf("row belongs to student %d, want %d", row.Student.ID, st.ID)
		}
	}
}
