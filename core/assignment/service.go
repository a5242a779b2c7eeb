package assignment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/school"
)

var (
	// errors
	ErrNotFound           = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrInvalidType        = errors.New("unknown assignment type")
	ErrNotPublished       = errors.New("assignment is not open for submission")
	ErrNotInBatch         = errors.New("student does not belong to this assignment's batch")
	ErrAlreadySubmitted   = errors.New("assignment already submitted")
	ErrMarksExceedMax     = errors.New("marks exceed the assignment's maximum")
	ErrLowScore           = errors.New("submission rejected: correctness score below the required minimum")
	ErrPlagiarism         = errors.New("submission rejected: too similar to a previous submission")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id int) (Assignment, error)
		QueryAssignmentsBySubject(ctx context.Context, subjectID int) ([]Assignment, error)
		QueryAssignmentsByTeacher(ctx context.Context, teacherID int) ([]Assignment, error)
		SetAssignmentStatus(ctx context.Context, id int, status string) error
		DeleteAssignment(ctx context.Context, id int) error

		// CreatePendingSubmissions seeds one pending submission per target
		// student in a single write.
		CreatePendingSubmissions(ctx context.Context, assignmentID int, studentIDs []int) error
		GetSubmission(ctx context.Context, assignmentID, studentID int) (Submission, error)
		GetSubmissionByID(ctx context.Context, id int) (Submission, error)
		// QueryAcceptedSubmissions returns submissions counting as submitted
		// for the assignment, for cross-checking new content.
		QueryAcceptedSubmissions(ctx context.Context, assignmentID int) ([]Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)

		// QueryStudentEmails resolves the account addresses of the given students.
		QueryStudentEmails(ctx context.Context, studentIDs []int) ([]mail.Address, error)
	}

	// Scorer is the external similarity-scoring subsystem. The engine consumes
	// its outputs as floats; it never computes them.
	Scorer interface {
		// ScoreSubmission rates a submission's correctness against the
		// assignment's solution artifact, in [0.0, 1.0].
		ScoreSubmission(ctx context.Context, a Assignment, content string) (float64, error)
		// Similarity rates how alike two submission texts are, in [0.0, 1.0].
		Similarity(a, b string) float64
	}

	// DefaulterSource resolves the students of a scope whose theory attendance
	// is below the configured limit. Implemented by the eligibility engine.
	DefaulterSource interface {
		DefaulterStudentIDs(ctx context.Context, subjectID, divisionID int) ([]int, error)
	}

	Service interface {
		Create(ctx context.Context, teacherID int, na NewAssignment) (Assignment, error)
		Publish(ctx context.Context, teacherID, assignmentID int) (Assignment, error)
		Delete(ctx context.Context, teacherID, assignmentID int) error
		GetByID(ctx context.Context, id int) (Assignment, error)
		QueryByTeacher(ctx context.Context, teacherID int) ([]Assignment, error)

		Submit(ctx context.Context, st school.Student, assignmentID int, ns NewSubmission) (Submission, error)
		Grade(ctx context.Context, teacherID, submissionID int, gu GradeUpdate) (Submission, error)
	}

	service struct {
		repo         Repository
		authoritySvc authority.Service
		schoolSvc    school.Service
		scorer       Scorer
		defaulters   DefaulterSource
		mailSvc      core.EmailService
		conf         *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	authoritySvc authority.Service,
	schoolSvc school.Service,
	scorer Scorer,
	defaulters DefaulterSource,
	mailSvc core.EmailService,
	conf *core.Config,
) Service {
	return &service{
		repo:         repo,
		authoritySvc: authoritySvc,
		schoolSvc:    schoolSvc,
		scorer:       scorer,
		defaulters:   defaulters,
		mailSvc:      mailSvc,
		conf:         conf,
	}
}

// checkCreateAuthority enforces the creation-time capability rules:
// Theory/Defaulter need Theory authority; HomeAssignment additionally needs
// the subject flag; Lab/Tutorial need the subject flag, a batch, and the
// matching capability for that exact batch.
func (svc *service) checkCreateAuthority(ctx context.Context, teacherID int, sub school.Subject, na NewAssignment) error {
	switch na.Type {
	case TypeTheory, TypeDefaulter:
		ok, err := svc.authoritySvc.HasTheoryAuthority(ctx, teacherID, sub.ID, na.DivisionID)
		if err != nil {
			return err
		}
		if !ok {
			return authority.ErrPermissionDenied
		}
	case TypeHomeAssignment:
		if !sub.HasHomeAssignment {
			return authority.ErrPermissionDenied
		}
		ok, err := svc.authoritySvc.HasTheoryAuthority(ctx, teacherID, sub.ID, na.DivisionID)
		if err != nil {
			return err
		}
		if !ok {
			return authority.ErrPermissionDenied
		}
	case TypeLab:
		if !sub.HasLab || na.BatchID == 0 {
			return authority.ErrPermissionDenied
		}
		ok, err := svc.authoritySvc.HasBatchCapability(ctx, teacherID, sub.ID, na.DivisionID, na.BatchID, authority.CapabilityLab)
		if err != nil {
			return err
		}
		if !ok {
			return authority.ErrPermissionDenied
		}
	case TypeTutorial:
		if !sub.HasTutorial || na.BatchID == 0 {
			return authority.ErrPermissionDenied
		}
		ok, err := svc.authoritySvc.HasBatchCapability(ctx, teacherID, sub.ID, na.DivisionID, na.BatchID, authority.CapabilityTutorial)
		if err != nil {
			return err
		}
		if !ok {
			return authority.ErrPermissionDenied
		}
	default:
		return core.NewValidationError(ErrInvalidType,
			core.FieldError{Field: "assignment_type", Error: ErrInvalidType.Error()})
	}
	return nil
}

// targetStudents resolves who the assignment is for: defaulters below the
// attendance limit, one batch, or the whole division. The roster and batch
// map are computed once for the division.
func (svc *service) targetStudents(ctx context.Context, a Assignment) ([]int, error) {
	if a.Type == TypeDefaulter {
		return svc.defaulters.DefaulterStudentIDs(ctx, a.SubjectID, a.DivisionID)
	}

	roster, err := svc.schoolSvc.Roster(ctx, a.DivisionID)
	if err != nil {
		return nil, err
	}
	if !a.BatchID.Valid {
		ids := make([]int, 0, len(roster.Students))
		for _, st := range roster.Students {
			ids = append(ids, st.ID)
		}
		return ids, nil
	}

	bm := roster.BatchMap()
	var ids []int
	for _, st := range roster.Students {
		if b := bm.BatchFor(st.ID); b != nil && b.ID == int(a.BatchID.Int) {
			ids = append(ids, st.ID)
		}
	}
	return ids, nil
}

func (svc *service) Create(ctx context.Context, teacherID int, na NewAssignment) (Assignment, error) {
	if err := na.Validate(); err != nil {
		return Assignment{}, err
	}

	sub, err := svc.schoolSvc.GetSubject(ctx, na.SubjectID)
	if err != nil {
		return Assignment{}, err
	}
	if err = svc.checkCreateAuthority(ctx, teacherID, sub, na); err != nil {
		return Assignment{}, err
	}

	a := Assignment{
		Title:        na.Title,
		SubjectID:    na.SubjectID,
		TeacherID:    teacherID,
		DivisionID:   na.DivisionID,
		Type:         na.Type,
		Description:  null.NewString(na.Description, na.Description != ""),
		Instructions: null.NewString(na.Instructions, na.Instructions != ""),
		Deadline:     na.Deadline.UTC(),
		MaxMarks:     na.MaxMarks,
		Status:       StatusDraft,
		FilePath:     null.NewString(na.FilePath, na.FilePath != ""),
		SolutionPath: null.NewString(na.SolutionPath, na.SolutionPath != ""),
		CreatedAt:    time.Now().UTC(),
	}
	if na.BatchID != 0 && (na.Type == TypeLab || na.Type == TypeTutorial) {
		a.BatchID = null.IntFrom(na.BatchID)
	}

	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *service) notifyStudents(ctx context.Context, a Assignment, sub school.Subject, studentIDs []int) {
	addrs, err := svc.repo.QueryStudentEmails(ctx, studentIDs)
	if err != nil || len(addrs) == 0 {
		return // notification is best-effort
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		Bcc:     addrs,
		Subject: fmt.Sprintf("New %s assignment for %s", a.Type, sub.Name),
		BodyStr: fmt.Sprintf("A new %s assignment %q has been posted for %s. Deadline: %s.",
			a.Type, a.Title, sub.Name, a.Deadline.Format(time.RFC1123)),
	})
}

// Publish opens the assignment for submission: the targeted students get their
// pending submissions seeded and are notified. Drafts create no obligations.
func (svc *service) Publish(ctx context.Context, teacherID, assignmentID int) (Assignment, error) {
	a, err := svc.repo.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	if a.TeacherID != teacherID {
		return Assignment{}, authority.ErrPermissionDenied
	}
	if a.IsPublished() {
		return a, nil
	}
	if err = svc.repo.SetAssignmentStatus(ctx, assignmentID, StatusPublished); err != nil {
		return Assignment{}, err
	}
	a.Status = StatusPublished

	targets, err := svc.targetStudents(ctx, a)
	if err != nil {
		return Assignment{}, err
	}
	if len(targets) > 0 {
		if err = svc.repo.CreatePendingSubmissions(ctx, a.ID, targets); err != nil {
			return Assignment{}, err
		}
		sub, err := svc.schoolSvc.GetSubject(ctx, a.SubjectID)
		if err != nil {
			return Assignment{}, err
		}
		svc.notifyStudents(ctx, a, sub, targets)
	}
	return a, nil
}

func (svc *service) Delete(ctx context.Context, teacherID, assignmentID int) error {
	a, err := svc.repo.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a.TeacherID != teacherID {
		return authority.ErrPermissionDenied
	}
	return svc.repo.DeleteAssignment(ctx, assignmentID)
}

func (svc *service) GetByID(ctx context.Context, id int) (Assignment, error) {
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *service) QueryByTeacher(ctx context.Context, teacherID int) ([]Assignment, error) {
	return svc.repo.QueryAssignmentsByTeacher(ctx, teacherID)
}

// Submit accepts a student's work: the student must hold the pending
// submission (and be in the assignment's batch when one is named), the
// externally computed correctness score must clear the configured minimum,
// and the content must not duplicate a previously accepted submission.
func (svc *service) Submit(ctx context.Context, st school.Student, assignmentID int, ns NewSubmission) (Submission, error) {
	if err := ns.Validate(); err != nil {
		return Submission{}, err
	}

	a, err := svc.repo.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	if !a.IsPublished() {
		return Submission{}, ErrNotPublished
	}

	if a.BatchID.Valid {
		batch, err := svc.schoolSvc.AssignBatch(ctx, st.ID, a.DivisionID)
		if err != nil {
			return Submission{}, err
		}
		if batch == nil || batch.ID != int(a.BatchID.Int) {
			return Submission{}, ErrNotInBatch
		}
	}

	sub, err := svc.repo.GetSubmission(ctx, assignmentID, st.ID)
	if err != nil {
		return Submission{}, err
	}
	if sub.Status != SubmissionPending {
		return Submission{}, ErrAlreadySubmitted
	}

	score, err := svc.scorer.ScoreSubmission(ctx, a, ns.Content)
	if err != nil {
		return Submission{}, err
	}
	if score < svc.conf.NOC.MinCorrectness {
		return Submission{}, core.NewValidationError(ErrLowScore, core.FieldError{
			Field: "content",
			Error: fmt.Sprintf("scored %d, below the required %d",
				int(score*100), int(svc.conf.NOC.MinCorrectness*100)),
		})
	}

	accepted, err := svc.repo.QueryAcceptedSubmissions(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	for _, prev := range accepted {
		if prev.Content.Valid && svc.scorer.Similarity(ns.Content, prev.Content.String) >= svc.conf.NOC.PlagiarismLimit {
			return Submission{}, ErrPlagiarism
		}
	}

	now := time.Now().UTC()
	sub.Content = null.StringFrom(ns.Content)
	sub.FilePath = null.NewString(ns.FilePath, ns.FilePath != "")
	sub.Score = null.Float64From(score)
	sub.Marks = null.Float64From(float64(int(score * 100)))
	sub.SubmittedAt = null.TimeFrom(now)
	sub.Status = SubmissionSubmitted
	if now.After(a.Deadline) {
		sub.Status = SubmissionLate
	}
	return svc.repo.UpdateSubmission(ctx, sub)
}

func (svc *service) Grade(ctx context.Context, teacherID, submissionID int, gu GradeUpdate) (Submission, error) {
	if err := gu.Validate(); err != nil {
		return Submission{}, err
	}

	sub, err := svc.repo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	a, err := svc.repo.GetAssignmentByID(ctx, sub.AssignmentID)
	if err != nil {
		return Submission{}, err
	}
	if a.TeacherID != teacherID {
		return Submission{}, authority.ErrPermissionDenied
	}
	if gu.Marks > float64(a.MaxMarks) {
		return Submission{}, core.NewValidationError(ErrMarksExceedMax,
			core.FieldError{Field: "marks", Error: ErrMarksExceedMax.Error()})
	}
	sub.Marks = null.Float64From(gu.Marks)
	sub.Feedback = null.NewString(gu.Feedback, gu.Feedback != "")
	return svc.repo.UpdateSubmission(ctx, sub)
}
