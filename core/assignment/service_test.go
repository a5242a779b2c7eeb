package assignment_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
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

// stubScorer returns a fixed correctness score and flags identical texts as
// fully similar.
type stubScorer struct {
	score float64
}

func (s *stubScorer) ScoreSubmission(ctx context.Context, a assignment.Assignment, content string) (float64, error) {
	return s.score, nil
}

func (s *stubScorer) Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

type stubDefaulters struct {
	ids []int
}

func (s *stubDefaulters) DefaulterStudentIDs(ctx context.Context, subjectID, divisionID int) ([]int, error) {
	return s.ids, nil
}

type fixture struct {
	svc        assignment.Service
	repo       assignment.Repository
	schoolSvc  school.Service
	scorer     *stubScorer
	defaulters *stubDefaulters

	division school.Division
	batches  []school.Batch
	subject  school.Subject // lab + home assignment + CIE
	plain    school.Subject // no component flags
	students []school.Student

	theoryTeacher school.Teacher
	labTeacher    school.Teacher
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	schoolSvc := school.NewService(inmemdb.NewSchoolRepository(db))
	authSvc := authority.NewService(inmemdb.NewAuthorityRepository(db), schoolSvc)
	userSvc := user.NewService(inmemdb.NewUserRepository(db))
	conf := &core.Config{
		AppName:          "Darasa",
		DefaultFromEmail: "noreply@test.test",
		NOC:              core.NOCConfig{AttendanceLimit: 75.0, MinCorrectness: 0.70, PlagiarismLimit: 0.80},
	}

	f := &fixture{
		repo:       inmemdb.NewAssignmentRepository(db),
		schoolSvc:  schoolSvc,
		scorer:     &stubScorer{score: 0.9},
		defaulters: &stubDefaulters{},
	}
	f.svc = assignment.NewService(
		f.repo, authSvc, schoolSvc, f.scorer, f.defaulters, emailsvc.NewConsoleServiceMock(conf), conf)

	dep, err := schoolSvc.CreateDepartment(ctx, "Information Technology")
	if err != nil {
		t.Fatalf("creating department: %v", err)
	}
	f.division, err = schoolSvc.CreateDivision(ctx, school.NewDivision{
		Name: "A", DepartmentID: dep.ID, Year: school.YearSecond, AcademicYear: 2026, NumBatches: 2,
	})
	if err != nil {
		t.Fatalf("creating division: %v", err)
	}
	f.subject, err = schoolSvc.CreateSubject(ctx, school.NewSubject{
		Name: "Operating Systems", DepartmentID: dep.ID, Year: school.YearSecond,
		HasCIE: true, HasHomeAssignment: true, HasLab: true,
	})
	if err != nil {
		t.Fatalf("creating subject: %v", err)
	}
	f.plain, err = schoolSvc.CreateSubject(ctx, school.NewSubject{
		Name: "Professional Ethics", DepartmentID: dep.ID, Year: school.YearSecond,
	})
	if err != nil {
		t.Fatalf("creating subject: %v", err)
	}

	for i := 1; i <= 4; i++ {
		usr, err := userSvc.Create(ctx, user.NewUser{
			Email:    fmt.Sprintf("student%d@test.test", i),
			Password: "LongEnoughPwd1!",
			Role:     user.RoleStudent,
		})
		if err != nil {
			t.Fatalf("creating user: %v", err)
		}
		st, err := schoolSvc.CreateStudent(ctx, school.NewStudent{
			UserID:     usr.ID,
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
	f.labTeacher, err = schoolSvc.CreateTeacher(ctx, school.NewTeacher{UserID: 1001, Name: "Prof. Lab"})
	if err != nil {
		t.Fatalf("creating teacher: %v", err)
	}
	for _, g := range []authority.NewGrant{
		{TeacherID: f.theoryTeacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID, Capability: authority.CapabilityTheory},
		{TeacherID: f.theoryTeacher.ID, SubjectID: f.plain.ID, DivisionID: f.division.ID, Capability: authority.CapabilityTheory},
		{TeacherID: f.labTeacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID, BatchID: f.batches[0].ID, Capability: authority.CapabilityLab},
	} {
		if _, err := authSvc.Create(ctx, g); err != nil {
			t.Fatalf("creating grant: %v", err)
		}
	}
	return f
}

func (f *fixture) newAssignment(subjectID int, typ string, batchID int) assignment.NewAssignment {
	return assignment.NewAssignment{
		Title:      typ + " work",
		SubjectID:  subjectID,
		DivisionID: f.division.ID,
		BatchID:    batchID,
		Type:       typ,
		Deadline:   time.Now().Add(72 * time.Hour),
		MaxMarks:   10,
	}
}

func TestCreateAuthority(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name      string
		teacherID int
		na        assignment.NewAssignment
		wantErr   bool
	}{
		{
			name:      "theory teacher creates theory work",
			teacherID: f.theoryTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeTheory, 0),
		},
		{
			name:      "theory teacher creates defaulter work",
			teacherID: f.theoryTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeDefaulter, 0),
		},
		{
			name:      "theory teacher creates home assignment",
			teacherID: f.theoryTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeHomeAssignment, 0),
		},
		{
			name:      "home assignment needs the subject flag",
			teacherID: f.theoryTeacher.ID,
			na:        f.newAssignment(f.plain.ID, assignment.TypeHomeAssignment, 0),
			wantErr:   true,
		},
		{
			name:      "lab teacher creates lab work for own batch",
			teacherID: f.labTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeLab, -1), // -1: filled below
		},
		{
			name:      "lab teacher denied on the other batch",
			teacherID: f.labTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeLab, -2),
			wantErr:   true,
		},
		{
			name:      "lab work needs a batch",
			teacherID: f.labTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeLab, 0),
			wantErr:   true,
		},
		{
			name:      "lab teacher denied theory work",
			teacherID: f.labTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeTheory, 0),
			wantErr:   true,
		},
		{
			name:      "tutorial needs the subject flag",
			teacherID: f.theoryTeacher.ID,
			na:        f.newAssignment(f.subject.ID, assignment.TypeTutorial, 0),
			wantErr:   true,
		},
		{
			name:      "unknown type rejected",
			teacherID: f.theoryTeacher.ID,
			na:        f.newAssignment(f.subject.ID, "Quiz", 0),
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch tt.na.BatchID {
			case -1:
				tt.na.BatchID = f.batches[0].ID
			case -2:
				tt.na.BatchID = f.batches[1].ID
			}
			_, err := f.svc.Create(ctx, tt.teacherID, tt.na)
			if (err != nil) != tt.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := setup(t)

	na := f.newAssignment(f.subject.ID, assignment.TypeTheory, 0)
	na.Title = "   "
	if _, err := f.svc.Create(ctx, f.theoryTeacher.ID, na); err == nil {
		t.Error("blank title accepted")
	}
}

func TestPublishSeedsPendingSubmissions(t *testing.T) {
	f := setup(t)
	before := len(emailsvc.SentMessages)

	a, err := f.svc.Create(ctx, f.theoryTeacher.ID, f.newAssignment(f.subject.ID, assignment.TypeTheory, 0))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.Status != assignment.StatusDraft {
		t.Errorf("status = %q, want %q", a.Status, assignment.StatusDraft)
	}

	// drafts create no obligations and no noise
	for _, st := range f.students {
		if _, err := f.repo.GetSubmission(ctx, a.ID, st.ID); err != assignment.ErrSubmissionNotFound {
			t.Errorf("student %d has a submission on a draft: %v", st.ID, err)
		}
	}
	if got := len(emailsvc.SentMessages); got != before {
		t.Errorf("sent %d notification emails on a draft, want 0", got-before)
	}

	if a, err = f.svc.Publish(ctx, f.theoryTeacher.ID, a.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// division-wide type: every student gets a pending submission
	for _, st := range f.students {
		sub, err := f.repo.GetSubmission(ctx, a.ID, st.ID)
		if err != nil {
			t.Fatalf("student %d has no submission: %v", st.ID, err)
		}
		if sub.Status != assignment.SubmissionPending {
			t.Errorf("student %d submission status = %q, want %q", st.ID, sub.Status, assignment.SubmissionPending)
		}
	}
	if got := len(emailsvc.SentMessages); got != before+1 {
		t.Errorf("sent %d notification emails, want 1", got-before)
	}

	// republishing is a no-op
	if _, err = f.svc.Publish(ctx, f.theoryTeacher.ID, a.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := len(emailsvc.SentMessages); got != before+1 {
		t.Errorf("republish sent %d extra emails, want 0", got-before-1)
	}
}

func TestPublishLabTargetsBatchOnly(t *testing.T) {
	f := setup(t)

	na := f.newAssignment(f.subject.ID, assignment.TypeLab, f.batches[0].ID)
	a, err := f.svc.Create(ctx, f.labTeacher.ID, na)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err = f.svc.Publish(ctx, f.labTeacher.ID, a.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// 4 students, 2 batches: students[0,1] are in the first batch
	for i, st := range f.students {
		_, err := f.repo.GetSubmission(ctx, a.ID, st.ID)
		if inBatch := i < 2; (err == nil) != inBatch {
			t.Errorf("student %d: submission err = %v, in batch = %v", st.ID, err, inBatch)
		}
	}
}

func TestPublishDefaulterTargetsDefaulters(t *testing.T) {
	f := setup(t)
	f.defaulters.ids = []int{f.students[2].ID}

	a, err := f.svc.Create(ctx, f.theoryTeacher.ID, f.newAssignment(f.subject.ID, assignment.TypeDefaulter, 0))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err = f.svc.Publish(ctx, f.theoryTeacher.ID, a.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for i, st := range f.students {
		_, err := f.repo.GetSubmission(ctx, a.ID, st.ID)
		if isTarget := i == 2; (err == nil) != isTarget {
			t.Errorf("student %d: submission err = %v, target = %v", st.ID, err, isTarget)
		}
	}
}

func TestSubmitGates(t *testing.T) {
	f := setup(t)

	a, err := f.svc.Create(ctx, f.labTeacher.ID, f.newAssignment(f.subject.ID, assignment.TypeLab, f.batches[0].ID))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	inBatch, alsoInBatch, outOfBatch := f.students[0], f.students[1], f.students[3]

	// drafts are not open for submission
	if _, err = f.svc.Submit(ctx, inBatch, a.ID, assignment.NewSubmission{Content: "w"}); err != assignment.ErrNotPublished {
		t.Errorf("draft: error = %v, want %v", err, assignment.ErrNotPublished)
	}

	if _, err = f.svc.Publish(ctx, f.labTeacher.ID, a.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if _, err = f.svc.Submit(ctx, outOfBatch, a.ID, assignment.NewSubmission{Content: "w"}); err != assignment.ErrNotInBatch {
		t.Errorf("out of batch: error = %v, want %v", err, assignment.ErrNotInBatch)
	}

	// below the correctness minimum
	f.scorer.score = 0.5
	if _, err = f.svc.Submit(ctx, inBatch, a.ID, assignment.NewSubmission{Content: "weak answer"}); err == nil {
		t.Error("low score accepted")
	}

	f.scorer.score = 0.75
	sub, err := f.svc.Submit(ctx, inBatch, a.ID, assignment.NewSubmission{Content: "solid answer"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.Status != assignment.SubmissionSubmitted {
		t.Errorf("status = %q, want %q", sub.Status, assignment.SubmissionSubmitted)
	}
	if got := sub.Marks.Float64; got != 75 {
		t.Errorf("marks = %v, want 75", got)
	}

	if _, err = f.svc.Submit(ctx, inBatch, a.ID, assignment.NewSubmission{Content: "again"}); err != assignment.ErrAlreadySubmitted {
		t.Errorf("resubmission: error = %v, want %v", err, assignment.ErrAlreadySubmitted)
	}

	// identical content from another student is plagiarism
	if _, err = f.svc.Submit(ctx, alsoInBatch, a.ID, assignment.NewSubmission{Content: "solid answer"}); err != assignment.ErrPlagiarism {
		t.Errorf("duplicate content: error = %v, want %v", err, assignment.ErrPlagiarism)
	}
}

func TestSubmitAfterDeadlineIsLate(t *testing.T) {
	f := setup(t)

	na := f.newAssignment(f.subject.ID, assignment.TypeTheory, 0)
	na.Deadline = time.Now().Add(-24 * time.Hour)
	a, err := f.svc.Create(ctx, f.theoryTeacher.ID, na)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err = f.svc.Publish(ctx, f.theoryTeacher.ID, a.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	sub, err := f.svc.Submit(ctx, f.students[0], a.ID, assignment.NewSubmission{Content: "past due"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.Status != assignment.SubmissionLate {
		t.Errorf("status = %q, want %q", sub.Status, assignment.SubmissionLate)
	}
}

func TestGrade(t *testing.T) {
	f := setup(t)

	a, err := f.svc.Create(ctx, f.theoryTeacher.ID, f.newAssignment(f.subject.ID, assignment.TypeTheory, 0))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err = f.svc.Publish(ctx, f.theoryTeacher.ID, a.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	sub, err := f.svc.Submit(ctx, f.students[0], a.ID, assignment.NewSubmission{Content: "answer"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// only the owning teacher may grade
	if _, err = f.svc.Grade(ctx, f.labTeacher.ID, sub.ID, assignment.GradeUpdate{Marks: 8}); err != authority.ErrPermissionDenied {
		t.Errorf("foreign grading: error = %v, want %v", err, authority.ErrPermissionDenied)
	}

	if _, err = f.svc.Grade(ctx, f.theoryTeacher.ID, sub.ID, assignment.GradeUpdate{Marks: 11}); err == nil {
		t.Error("marks above the maximum accepted")
	}

	graded, err := f.svc.Grade(ctx, f.theoryTeacher.ID, sub.ID, assignment.GradeUpdate{Marks: 8, Feedback: "good"})
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if graded.Marks.Float64 != 8 {
		t.Errorf("marks = %v, want 8", graded.Marks.Float64)
	}
	if graded.Feedback.String != "good" {
		t.Errorf("feedback = %q, want %q", graded.Feedback.String, "good")
	}
}
