package authority_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authority"
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
	schoolSvc school.Service
	authSvc   authority.Service

	division school.Division
	other    school.Division
	batches  []school.Batch
	subject  school.Subject
	students []school.Student
	teacher  school.Teacher
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	schoolSvc := school.NewService(inmemdb.NewSchoolRepository(db))
	f := &fixture{
		schoolSvc: schoolSvc,
		authSvc:   authority.NewService(inmemdb.NewAuthorityRepository(db), schoolSvc),
	}

	dep, err := schoolSvc.CreateDepartment(ctx, "Mechanical Engineering")
	if err != nil {
		t.Fatalf("creating department: %v", err)
	}
	f.division, err = schoolSvc.CreateDivision(ctx, school.NewDivision{
		Name: "A", DepartmentID: dep.ID, Year: school.YearThird, AcademicYear: 2026, NumBatches: 2,
	})
	if err != nil {
		t.Fatalf("creating division: %v", err)
	}
	f.other, err = schoolSvc.CreateDivision(ctx, school.NewDivision{
		Name: "B", DepartmentID: dep.ID, Year: school.YearThird, AcademicYear: 2026, NumBatches: 2,
	})
	if err != nil {
		t.Fatalf("creating division: %v", err)
	}
	f.subject, err = schoolSvc.CreateSubject(ctx, school.NewSubject{
		Name: "Thermodynamics", DepartmentID: dep.ID, Year: school.YearThird, HasLab: true,
	})
	if err != nil {
		t.Fatalf("creating subject: %v", err)
	}

	for i := 1; i <= 4; i++ {
		st, err := schoolSvc.CreateStudent(ctx, school.NewStudent{
			UserID:     i,
			Name:       fmt.Sprintf("Student %d", i),
			RollNumber: fmt.Sprintf("r%02d", i),
			Year:       school.YearThird,
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

	f.teacher, err = schoolSvc.CreateTeacher(ctx, school.NewTeacher{UserID: 1000, Name: "Prof. T"})
	if err != nil {
		t.Fatalf("creating teacher: %v", err)
	}
	return f
}

func TestCreateRejectsForeignBatch(t *testing.T) {
	f := setup(t)

	otherRoster, err := f.schoolSvc.Roster(ctx, f.other.ID)
	if err != nil {
		t.Fatalf("fetching roster: %v", err)
	}

	_, err = f.authSvc.Create(ctx, authority.NewGrant{
		TeacherID:  f.teacher.ID,
		SubjectID:  f.subject.ID,
		DivisionID: f.division.ID,
		BatchID:    otherRoster.Batches[0].ID, // belongs to division B
		Capability: authority.CapabilityLab,
	})
	if _, ok := core.AsValidationError(err); !ok {
		t.Fatalf("Create() error = %v, want a validation error", err)
	}
}

// Grants outside the capability enum, or Lab/Tutorial grants without a batch,
// must never be stored: any stored grant buys coarse read access on its scope.
func TestCreateValidatesGrant(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		ng   authority.NewGrant
	}{
		{
			name: "unknown capability",
			ng: authority.NewGrant{
				TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID,
				Capability: "Marking",
			},
		},
		{
			name: "lab grant without a batch",
			ng: authority.NewGrant{
				TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID,
				Capability: authority.CapabilityLab,
			},
		},
		{
			name: "tutorial grant without a batch",
			ng: authority.NewGrant{
				TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID,
				Capability: authority.CapabilityTutorial,
			},
		},
		{
			name: "missing teacher",
			ng: authority.NewGrant{
				SubjectID: f.subject.ID, DivisionID: f.division.ID,
				Capability: authority.CapabilityTheory,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.authSvc.Create(ctx, tt.ng); err == nil {
				t.Fatal("Create() accepted an invalid grant")
			}
		})
	}

	// nothing was stored, so the scope stays inaccessible
	ok, err := f.authSvc.HasAnyAuthority(ctx, f.teacher.ID, f.subject.ID, f.division.ID)
	if err != nil {
		t.Fatalf("HasAnyAuthority() error = %v", err)
	}
	if ok {
		t.Error("a rejected grant still bought scope access")
	}
}

func TestAuthorityChecks(t *testing.T) {
	f := setup(t)

	if _, err := f.authSvc.Create(ctx, authority.NewGrant{
		TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID,
		BatchID: f.batches[0].ID, Capability: authority.CapabilityLab,
	}); err != nil {
		t.Fatalf("creating grant: %v", err)
	}

	tests := []struct {
		name  string
		check func() (bool, error)
		want  bool
	}{
		{
			name: "any authority on the granted scope",
			check: func() (bool, error) {
				return f.authSvc.HasAnyAuthority(ctx, f.teacher.ID, f.subject.ID, f.division.ID)
			},
			want: true,
		},
		{
			name: "no authority on another division",
			check: func() (bool, error) {
				return f.authSvc.HasAnyAuthority(ctx, f.teacher.ID, f.subject.ID, f.other.ID)
			},
		},
		{
			name: "a lab grant is not theory authority",
			check: func() (bool, error) {
				return f.authSvc.HasTheoryAuthority(ctx, f.teacher.ID, f.subject.ID, f.division.ID)
			},
		},
		{
			name: "lab capability on the granted batch",
			check: func() (bool, error) {
				return f.authSvc.HasBatchCapability(ctx, f.teacher.ID, f.subject.ID, f.division.ID,
					f.batches[0].ID, authority.CapabilityLab)
			},
			want: true,
		},
		{
			name: "no capability on the other batch",
			check: func() (bool, error) {
				return f.authSvc.HasBatchCapability(ctx, f.teacher.ID, f.subject.ID, f.division.ID,
					f.batches[1].ID, authority.CapabilityLab)
			},
		},
		{
			name: "no tutorial capability from a lab grant",
			check: func() (bool, error) {
				return f.authSvc.HasBatchCapability(ctx, f.teacher.ID, f.subject.ID, f.division.ID,
					f.batches[0].ID, authority.CapabilityTutorial)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.check()
			if err != nil {
				t.Fatalf("check error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasBatchAuthorityResolvesStudentBatch(t *testing.T) {
	f := setup(t)

	if _, err := f.authSvc.Create(ctx, authority.NewGrant{
		TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID,
		BatchID: f.batches[0].ID, Capability: authority.CapabilityLab,
	}); err != nil {
		t.Fatalf("creating grant: %v", err)
	}

	// 4 students, 2 batches: students[0,1] land in the first batch
	ok, err := f.authSvc.HasBatchAuthority(ctx, f.teacher.ID, f.subject.ID, f.students[0].ID)
	if err != nil {
		t.Fatalf("HasBatchAuthority() error = %v", err)
	}
	if !ok {
		t.Error("denied for a student of the granted batch")
	}

	ok, err = f.authSvc.HasBatchAuthority(ctx, f.teacher.ID, f.subject.ID, f.students[3].ID)
	if err != nil {
		t.Fatalf("HasBatchAuthority() error = %v", err)
	}
	if ok {
		t.Error("allowed for a student of another batch")
	}
}

// A student with no roll number resolves to no batch; the check denies rather
// than guessing.
func TestHasBatchAuthorityDeniesUnassignableStudents(t *testing.T) {
	f := setup(t)

	if _, err := f.authSvc.Create(ctx, authority.NewGrant{
		TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID,
		BatchID: f.batches[0].ID, Capability: authority.CapabilityLab,
	}); err != nil {
		t.Fatalf("creating grant: %v", err)
	}

	noRoll, err := f.schoolSvc.CreateStudent(ctx, school.NewStudent{
		UserID: 50, Name: "No Roll", Year: school.YearThird, DivisionID: f.division.ID,
	})
	if err != nil {
		t.Fatalf("creating student: %v", err)
	}
	noDivision, err := f.schoolSvc.CreateStudent(ctx, school.NewStudent{
		UserID: 51, Name: "No Division", RollNumber: "r99", Year: school.YearThird,
	})
	if err != nil {
		t.Fatalf("creating student: %v", err)
	}

	for _, st := range []school.Student{noRoll, noDivision} {
		ok, err := f.authSvc.HasBatchAuthority(ctx, f.teacher.ID, f.subject.ID, st.ID)
		if err != nil {
			t.Fatalf("HasBatchAuthority(%s) error = %v", st.Name, err)
		}
		if ok {
			t.Errorf("HasBatchAuthority(%s) = true, want denial", st.Name)
		}
	}
}

func TestScopeAccess(t *testing.T) {
	f := setup(t)

	for _, g := range []authority.NewGrant{
		{TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID, Capability: authority.CapabilityTheory},
		{TeacherID: f.teacher.ID, SubjectID: f.subject.ID, DivisionID: f.division.ID, BatchID: f.batches[0].ID, Capability: authority.CapabilityLab},
	} {
		if _, err := f.authSvc.Create(ctx, g); err != nil {
			t.Fatalf("creating grant: %v", err)
		}
	}

	access, err := f.authSvc.ScopeAccess(ctx, f.teacher.ID, f.subject.ID, f.division.ID)
	if err != nil {
		t.Fatalf("ScopeAccess() error = %v", err)
	}
	if !access.HasAny || !access.HasTheory {
		t.Errorf("HasAny = %v, HasTheory = %v, want both true", access.HasAny, access.HasTheory)
	}
	if !access.CanUpdateBatch(&f.batches[0].ID) {
		t.Error("granted batch not updatable")
	}
	if access.CanUpdateBatch(&f.batches[1].ID) {
		t.Error("ungranted batch updatable")
	}
	if access.CanUpdateBatch(nil) {
		t.Error("nil batch updatable")
	}
}
