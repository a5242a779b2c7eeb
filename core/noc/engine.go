package noc

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/school"
)

var (
	// errors
	ErrRecordNotFound = errors.New("compliance record not found")
	ErrInvalidStatus  = errors.New("only Granted or Refused may be set explicitly")
	ErrUnknownTrack   = errors.New("unknown NOC track")
)

type (
	Repository interface {
		// CreateMissingRecords inserts the given records, skipping any
		// (student, subject) pair that already has one, and returns the
		// number actually created.
		CreateMissingRecords(ctx context.Context, recs []StatusRecord) (int, error)
		GetRecordByID(ctx context.Context, id int) (StatusRecord, error)
		GetRecord(ctx context.Context, studentID, subjectID int) (StatusRecord, error)
		// QueryScopeRecords returns the records of all students enrolled in
		// the division, for the subject.
		QueryScopeRecords(ctx context.Context, subjectID, divisionID int) ([]StatusRecord, error)
		QueryStudentRecords(ctx context.Context, studentID int) ([]StatusRecord, error)
		UpdateRecord(ctx context.Context, rec StatusRecord) (StatusRecord, error)
		// UpdateTrackStatuses persists only the status fields, reason and
		// last-updated time of the given records.
		UpdateTrackStatuses(ctx context.Context, recs []StatusRecord) error

		// bulk writes; each must be a single statement
		BulkSetTheoryAttendance(ctx context.Context, subjectID, divisionID int, pct float64) (int, error)
		BulkSetCIE(ctx context.Context, subjectID, divisionID, marks int) (int, error)
		BulkSetLabAttendance(ctx context.Context, subjectID int, studentIDs []int, pct float64) (int, error)
		BulkSetTutorialAttendance(ctx context.Context, subjectID int, studentIDs []int, pct float64) (int, error)

		// reads from the assignment domain
		QueryScopeAssignments(ctx context.Context, subjectID, divisionID int) ([]assignment.Assignment, error)
		// QuerySubmittedAssignmentIDs reduces submissions to a per-student set
		// of assignment ids whose submission counts as submitted.
		QuerySubmittedAssignmentIDs(ctx context.Context, studentIDs, assignmentIDs []int) (map[int]map[int]bool, error)

		// QueryEnrolledStudents returns all students assigned to a division.
		QueryEnrolledStudents(ctx context.Context) ([]school.Student, error)
	}

	// Engine recomputes NOC eligibility. It is pure over the snapshots its
	// repository hands it and holds no mutable state; racing recomputes of the
	// same scope are serialized at the storage layer, not here.
	Engine interface {
		// Backfill creates the missing compliance records for the given
		// students, or for every enrolled student when none are given.
		// Safe to re-run; existing records are left untouched.
		Backfill(ctx context.Context, studentIDs ...int) (BackfillResult, error)

		// RecomputeScope re-evaluates every record of a (subject, division)
		// scope and returns the number of records whose status changed.
		// Callers gate scope access before invoking.
		RecomputeScope(ctx context.Context, subjectID, divisionID int) (int, error)
		// RecomputeOne re-evaluates a single record, after a field edit.
		RecomputeOne(ctx context.Context, studentID, subjectID int) (StatusRecord, error)

		GetRecord(ctx context.Context, studentID, subjectID int) (StatusRecord, error)

		// SetTerminalStatus finalizes one track of a record to Granted or
		// Refused. Any other status is rejected. The teacher needs Theory
		// authority for the theory track, or a Lab/Tutorial grant on the
		// student's batch for the lab/tutorial track.
		SetTerminalStatus(ctx context.Context, teacherID, recordID int, track Track, tu TerminalStatusUpdate) (StatusRecord, error)

		// field edits; each re-runs the evaluation for the touched record
		UpdateSCE(ctx context.Context, teacherID int, su SCEUpdate) (StatusRecord, error)
		UpdateTheoryAttendance(ctx context.Context, teacherID int, au AttendanceUpdate) (StatusRecord, error)
		UpdateLabAttendance(ctx context.Context, teacherID int, au AttendanceUpdate) (StatusRecord, error)
		UpdateTutorialAttendance(ctx context.Context, teacherID int, au AttendanceUpdate) (StatusRecord, error)

		// division- and batch-wide writes; callers trigger RecomputeScope after
		BulkSetTheoryAttendance(ctx context.Context, teacherID, subjectID, divisionID int, pct float64) (int, error)
		BulkSetCIE(ctx context.Context, teacherID, subjectID, divisionID, marks int) (int, error)
		BulkSetLabAttendance(ctx context.Context, teacherID, subjectID, divisionID, batchID int, pct float64) (int, error)
		BulkSetTutorialAttendance(ctx context.Context, teacherID, subjectID, divisionID, batchID int, pct float64) (int, error)

		// DefaulterStudentIDs returns the students of a scope whose theory
		// attendance is below the limit; remedial assignments target them.
		DefaulterStudentIDs(ctx context.Context, subjectID, divisionID int) ([]int, error)

		TeacherReport(ctx context.Context, teacherID, subjectID, divisionID int) ([]ReportRow, error)
		StudentReport(ctx context.Context, studentID int) ([]ReportRow, error)
	}

	engine struct {
		repo         Repository
		schoolSvc    school.Service
		authoritySvc authority.Service
		conf         *core.Config
	}
)

var _ Engine = (*engine)(nil)

// the engine is the defaulter-assignment targeting source
var _ assignment.DefaulterSource = (*engine)(nil)

func NewEngine(repo Repository, schoolSvc school.Service, authoritySvc authority.Service, conf *core.Config) Engine {
	return &engine{
		repo:         repo,
		schoolSvc:    schoolSvc,
		authoritySvc: authoritySvc,
		conf:         conf,
	}
}

// requirements are a subject's published assignments partitioned by type into
// the id-sets the evaluation subsets against. Drafts create no obligations.
type requirements struct {
	theory      []int
	home        []int
	lab         []int
	tutorial    []int
	defaulterID int // 0 when the subject has no published Defaulter assignment
	allIDs      []int
}

func buildRequirements(assignments []assignment.Assignment) requirements {
	var reqs requirements
	for _, a := range assignments {
		if !a.IsPublished() {
			continue
		}
		reqs.allIDs = append(reqs.allIDs, a.ID)
		switch a.Type {
		case assignment.TypeTheory:
			reqs.theory = append(reqs.theory, a.ID)
		case assignment.TypeHomeAssignment:
			reqs.home = append(reqs.home, a.ID)
		case assignment.TypeLab:
			reqs.lab = append(reqs.lab, a.ID)
		case assignment.TypeTutorial:
			reqs.tutorial = append(reqs.tutorial, a.ID)
		case assignment.TypeDefaulter:
			reqs.defaulterID = a.ID
		}
	}
	return reqs
}

// subset reports whether every required id was submitted. An empty requirement
// set is vacuously met.
func subset(required []int, submitted map[int]bool) bool {
	for _, id := range required {
		if !submitted[id] {
			return false
		}
	}
	return true
}

// evaluate runs the per-record predicates and returns whether each track's
// eligibility is met. It never looks at the stored statuses; the terminal lock
// is applied at write-back.
func (eng *engine) evaluate(rec StatusRecord, sub school.Subject, reqs requirements, submitted map[int]bool) (theoryMet, labTutMet bool) {
	limit := eng.conf.NOC.AttendanceLimit

	theoryAssignOk := subset(reqs.theory, submitted)
	homeAssignOk := subset(reqs.home, submitted)
	cieOk := !sub.HasCIE || rec.MarksCIE.Valid
	defaulterDone := reqs.defaulterID != 0 && submitted[reqs.defaulterID]

	// A low-attendance student can still qualify by completing the remedial
	// Defaulter assignment; every other theory requirement still applies.
	theoryMet = cieOk && homeAssignOk && theoryAssignOk
	if rec.TheoryAttendance < limit {
		theoryMet = theoryMet && defaulterDone
	}

	sceOk := true
	if sub.HasPBL {
		sceOk = sceOk && rec.PBLStatus == SCECompleted
	}
	if sub.HasPresentation {
		sceOk = sceOk && rec.PresentationStatus == SCECompleted
	}
	if sub.HasCertificate {
		sceOk = sceOk && rec.CertificationStatus == SCECompleted
	}

	labTutMet = sceOk
	if sub.HasLab {
		labTutMet = labTutMet && subset(reqs.lab, submitted) && rec.LabAttendance.Float64 >= limit
	}
	if sub.HasTutorial {
		labTutMet = labTutMet && subset(reqs.tutorial, submitted) && rec.TutorialAttendance.Float64 >= limit
	}
	return theoryMet, labTutMet
}

// applyEvaluation writes the evaluation back onto the record, skipping
// terminal tracks, and reports whether anything changed.
func applyEvaluation(rec *StatusRecord, theoryMet, labTutMet bool) bool {
	var changed bool
	for _, t := range AllTracks {
		cur := rec.NocStatus.Get(t)
		if IsTerminal(cur) {
			continue
		}
		met := theoryMet
		if t == TrackLabTut {
			met = labTutMet
		}
		next := StatusPending
		if met {
			next = StatusCompleted
		}
		if next != cur {
			rec.NocStatus.Set(t, next)
			changed = true
		}
	}
	if changed {
		rec.LastUpdated = time.Now().UTC()
	}
	return changed
}

func (eng *engine) Backfill(ctx context.Context, studentIDs ...int) (BackfillResult, error) {
	var res BackfillResult

	var students []school.Student
	if len(studentIDs) == 0 {
		var err error
		if students, err = eng.repo.QueryEnrolledStudents(ctx); err != nil {
			return res, err
		}
	} else {
		for _, id := range studentIDs {
			st, err := eng.schoolSvc.GetStudent(ctx, id)
			if err != nil {
				return res, err
			}
			students = append(students, st)
		}
	}

	subjectsByDivision := make(map[int][]school.Subject)
	var missing []StatusRecord
	for _, st := range students {
		if !st.DivisionID.Valid {
			res.StudentsSkipped++
			continue
		}
		divisionID := int(st.DivisionID.Int)
		subjects, ok := subjectsByDivision[divisionID]
		if !ok {
			var err error
			if subjects, err = eng.schoolSvc.SubjectsFor(ctx, divisionID); err != nil {
				return res, err
			}
			subjectsByDivision[divisionID] = subjects
		}
		for _, sub := range subjects {
			missing = append(missing, NewStatusRecord(st.ID, sub.ID))
		}
		res.StudentsProcessed++
	}

	if len(missing) > 0 {
		created, err := eng.repo.CreateMissingRecords(ctx, missing)
		if err != nil {
			return res, err
		}
		res.RecordsCreated = created
	}
	return res, nil
}

func (eng *engine) RecomputeScope(ctx context.Context, subjectID, divisionID int) (int, error) {
	sub, err := eng.schoolSvc.GetSubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	recs, err := eng.repo.QueryScopeRecords(ctx, subjectID, divisionID)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	assignments, err := eng.repo.QueryScopeAssignments(ctx, subjectID, divisionID)
	if err != nil {
		return 0, err
	}
	reqs := buildRequirements(assignments)

	studentIDs := make([]int, len(recs))
	for i, rec := range recs {
		studentIDs[i] = rec.StudentID
	}
	submittedSets, err := eng.repo.QuerySubmittedAssignmentIDs(ctx, studentIDs, reqs.allIDs)
	if err != nil {
		return 0, err
	}

	var changed []StatusRecord
	for _, rec := range recs {
		theoryMet, labTutMet := eng.evaluate(rec, sub, reqs, submittedSets[rec.StudentID])
		if applyEvaluation(&rec, theoryMet, labTutMet) {
			changed = append(changed, rec)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}
	if err = eng.repo.UpdateTrackStatuses(ctx, changed); err != nil {
		return 0, err
	}
	return len(changed), nil
}

func (eng *engine) RecomputeOne(ctx context.Context, studentID, subjectID int) (StatusRecord, error) {
	rec, err := eng.repo.GetRecord(ctx, studentID, subjectID)
	if err != nil {
		return StatusRecord{}, err
	}
	return eng.recomputeRecord(ctx, rec)
}

// recomputeRecord runs the full evaluation for one already-fetched record and
// persists the statuses if they changed.
func (eng *engine) recomputeRecord(ctx context.Context, rec StatusRecord) (StatusRecord, error) {
	sub, err := eng.schoolSvc.GetSubject(ctx, rec.SubjectID)
	if err != nil {
		return StatusRecord{}, err
	}
	st, err := eng.schoolSvc.GetStudent(ctx, rec.StudentID)
	if err != nil {
		return StatusRecord{}, err
	}

	var reqs requirements
	if st.DivisionID.Valid {
		assignments, err := eng.repo.QueryScopeAssignments(ctx, rec.SubjectID, int(st.DivisionID.Int))
		if err != nil {
			return StatusRecord{}, err
		}
		reqs = buildRequirements(assignments)
	}
	submittedSets, err := eng.repo.QuerySubmittedAssignmentIDs(ctx, []int{rec.StudentID}, reqs.allIDs)
	if err != nil {
		return StatusRecord{}, err
	}

	theoryMet, labTutMet := eng.evaluate(rec, sub, reqs, submittedSets[rec.StudentID])
	if applyEvaluation(&rec, theoryMet, labTutMet) {
		if err = eng.repo.UpdateTrackStatuses(ctx, []StatusRecord{rec}); err != nil {
			return StatusRecord{}, err
		}
	}
	return rec, nil
}

func (eng *engine) GetRecord(ctx context.Context, studentID, subjectID int) (StatusRecord, error) {
	return eng.repo.GetRecord(ctx, studentID, subjectID)
}

func (eng *engine) SetTerminalStatus(ctx context.Context, teacherID, recordID int, track Track, tu TerminalStatusUpdate) (StatusRecord, error) {
	if err := tu.Validate(); err != nil {
		return StatusRecord{}, err
	}
	if track != TrackTheory && track != TrackLabTut {
		return StatusRecord{}, ErrUnknownTrack
	}

	rec, err := eng.repo.GetRecordByID(ctx, recordID)
	if err != nil {
		return StatusRecord{}, err
	}

	var allowed bool
	switch track {
	case TrackTheory:
		st, err := eng.schoolSvc.GetStudent(ctx, rec.StudentID)
		if err != nil {
			return StatusRecord{}, err
		}
		if st.DivisionID.Valid {
			allowed, err = eng.authoritySvc.HasTheoryAuthority(ctx, teacherID, rec.SubjectID, int(st.DivisionID.Int))
			if err != nil {
				return StatusRecord{}, err
			}
		}
	case TrackLabTut:
		allowed, err = eng.authoritySvc.HasBatchAuthority(ctx, teacherID, rec.SubjectID, rec.StudentID)
		if err != nil {
			return StatusRecord{}, err
		}
	}
	if !allowed {
		return StatusRecord{}, authority.ErrPermissionDenied
	}

	rec.NocStatus.Set(track, tu.Status)
	rec.Reason = tu.Reason
	rec.LastUpdated = time.Now().UTC()
	return eng.repo.UpdateRecord(ctx, rec)
}

func (eng *engine) UpdateSCE(ctx context.Context, teacherID int, su SCEUpdate) (StatusRecord, error) {
	if err := su.Validate(); err != nil {
		return StatusRecord{}, err
	}
	rec, err := eng.repo.GetRecord(ctx, su.StudentID, su.SubjectID)
	if err != nil {
		return StatusRecord{}, err
	}

	// CIE marks are a theory-side field; SCE component statuses belong to the
	// student's lab/tutorial batch.
	if su.MarksCIE != nil {
		if err = eng.checkTheoryAuthority(ctx, teacherID, rec); err != nil {
			return StatusRecord{}, err
		}
	}
	if su.PBLStatus != nil || su.PresentationStatus != nil || su.CertificationStatus != nil {
		allowed, err := eng.authoritySvc.HasBatchAuthority(ctx, teacherID, su.SubjectID, su.StudentID)
		if err != nil {
			return StatusRecord{}, err
		}
		if !allowed {
			return StatusRecord{}, authority.ErrPermissionDenied
		}
	}

	su.apply(&rec)
	rec.LastUpdated = time.Now().UTC()
	if rec, err = eng.repo.UpdateRecord(ctx, rec); err != nil {
		return StatusRecord{}, err
	}
	return eng.recomputeRecord(ctx, rec)
}

func (eng *engine) UpdateTheoryAttendance(ctx context.Context, teacherID int, au AttendanceUpdate) (StatusRecord, error) {
	return eng.updateAttendance(ctx, teacherID, au, func(rec *StatusRecord) {
		rec.TheoryAttendance = au.Percent
	}, true)
}

func (eng *engine) UpdateLabAttendance(ctx context.Context, teacherID int, au AttendanceUpdate) (StatusRecord, error) {
	return eng.updateAttendance(ctx, teacherID, au, func(rec *StatusRecord) {
		rec.LabAttendance = null.Float64From(au.Percent)
	}, false)
}

func (eng *engine) UpdateTutorialAttendance(ctx context.Context, teacherID int, au AttendanceUpdate) (StatusRecord, error) {
	return eng.updateAttendance(ctx, teacherID, au, func(rec *StatusRecord) {
		rec.TutorialAttendance = null.Float64From(au.Percent)
	}, false)
}

func (eng *engine) updateAttendance(ctx context.Context, teacherID int, au AttendanceUpdate, set func(*StatusRecord), theorySide bool) (StatusRecord, error) {
	if err := au.Validate(); err != nil {
		return StatusRecord{}, err
	}
	rec, err := eng.repo.GetRecord(ctx, au.StudentID, au.SubjectID)
	if err != nil {
		return StatusRecord{}, err
	}

	if theorySide {
		if err = eng.checkTheoryAuthority(ctx, teacherID, rec); err != nil {
			return StatusRecord{}, err
		}
	} else {
		allowed, err := eng.authoritySvc.HasBatchAuthority(ctx, teacherID, au.SubjectID, au.StudentID)
		if err != nil {
			return StatusRecord{}, err
		}
		if !allowed {
			return StatusRecord{}, authority.ErrPermissionDenied
		}
	}

	set(&rec)
	rec.LastUpdated = time.Now().UTC()
	if rec, err = eng.repo.UpdateRecord(ctx, rec); err != nil {
		return StatusRecord{}, err
	}
	return eng.recomputeRecord(ctx, rec)
}

// checkTheoryAuthority resolves the record's division and requires a Theory
// grant on it. A student without a division denies.
func (eng *engine) checkTheoryAuthority(ctx context.Context, teacherID int, rec StatusRecord) error {
	st, err := eng.schoolSvc.GetStudent(ctx, rec.StudentID)
	if err != nil {
		return err
	}
	if !st.DivisionID.Valid {
		return authority.ErrPermissionDenied
	}
	allowed, err := eng.authoritySvc.HasTheoryAuthority(ctx, teacherID, rec.SubjectID, int(st.DivisionID.Int))
	if err != nil {
		return err
	}
	if !allowed {
		return authority.ErrPermissionDenied
	}
	return nil
}

func (eng *engine) BulkSetTheoryAttendance(ctx context.Context, teacherID, subjectID, divisionID int, pct float64) (int, error) {
	if err := validatePercent(pct); err != nil {
		return 0, err
	}
	if err := eng.checkDivisionTheoryAuthority(ctx, teacherID, subjectID, divisionID); err != nil {
		return 0, err
	}
	return eng.repo.BulkSetTheoryAttendance(ctx, subjectID, divisionID, pct)
}

func (eng *engine) BulkSetCIE(ctx context.Context, teacherID, subjectID, divisionID, marks int) (int, error) {
	if marks < 0 {
		return 0, core.NewValidationError(errors.New("invalid marks"),
			core.FieldError{Field: "marks_cie", Error: "must be 0 or greater"})
	}
	if err := eng.checkDivisionTheoryAuthority(ctx, teacherID, subjectID, divisionID); err != nil {
		return 0, err
	}
	return eng.repo.BulkSetCIE(ctx, subjectID, divisionID, marks)
}

func (eng *engine) BulkSetLabAttendance(ctx context.Context, teacherID, subjectID, divisionID, batchID int, pct float64) (int, error) {
	return eng.bulkSetBatchAttendance(ctx, teacherID, subjectID, divisionID, batchID, pct,
		authority.CapabilityLab, eng.repo.BulkSetLabAttendance)
}

func (eng *engine) BulkSetTutorialAttendance(ctx context.Context, teacherID, subjectID, divisionID, batchID int, pct float64) (int, error) {
	return eng.bulkSetBatchAttendance(ctx, teacherID, subjectID, divisionID, batchID, pct,
		authority.CapabilityTutorial, eng.repo.BulkSetTutorialAttendance)
}

func (eng *engine) bulkSetBatchAttendance(
	ctx context.Context,
	teacherID, subjectID, divisionID, batchID int,
	pct float64,
	capability string,
	write func(ctx context.Context, subjectID int, studentIDs []int, pct float64) (int, error),
) (int, error) {
	if err := validatePercent(pct); err != nil {
		return 0, err
	}
	allowed, err := eng.authoritySvc.HasBatchCapability(ctx, teacherID, subjectID, divisionID, batchID, capability)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, authority.ErrPermissionDenied
	}

	roster, err := eng.schoolSvc.Roster(ctx, divisionID)
	if err != nil {
		return 0, err
	}
	members := roster.BatchMap().Members(batchID)
	if len(members) == 0 {
		return 0, nil
	}
	return write(ctx, subjectID, members, pct)
}

func (eng *engine) checkDivisionTheoryAuthority(ctx context.Context, teacherID, subjectID, divisionID int) error {
	allowed, err := eng.authoritySvc.HasTheoryAuthority(ctx, teacherID, subjectID, divisionID)
	if err != nil {
		return err
	}
	if !allowed {
		return authority.ErrPermissionDenied
	}
	return nil
}

func (eng *engine) DefaulterStudentIDs(ctx context.Context, subjectID, divisionID int) ([]int, error) {
	recs, err := eng.repo.QueryScopeRecords(ctx, subjectID, divisionID)
	if err != nil {
		return nil, err
	}
	limit := eng.conf.NOC.AttendanceLimit
	var ids []int
	for _, rec := range recs {
		if rec.TheoryAttendance < limit {
			ids = append(ids, rec.StudentID)
		}
	}
	return ids, nil
}

func validatePercent(pct float64) error {
	if pct < 0 || pct > 100 {
		return core.NewValidationError(errors.New("percent out of range"),
			core.FieldError{Field: "percent", Error: "must be between 0 and 100"})
	}
	return nil
}
