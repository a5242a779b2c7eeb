package authority

import (
	"context"
	"errors"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/school"
)

var (
	// errors
	ErrNotFound         = errors.New("authority grant not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrBatchMismatch    = errors.New("batch does not belong to the stated division")
)

type (
	Repository interface {
		CreateGrant(ctx context.Context, g Grant) (Grant, error)
		GetGrantByID(ctx context.Context, id int) (Grant, error)
		// QueryGrants returns all grants for (teacher, subject, division),
		// any capability.
		QueryGrants(ctx context.Context, teacherID, subjectID, divisionID int) ([]Grant, error)
		QueryTeacherGrants(ctx context.Context, teacherID int) ([]Grant, error)
		DeleteGrant(ctx context.Context, id int) error
	}

	Service interface {
		Create(ctx context.Context, ng NewGrant) (Grant, error)
		Delete(ctx context.Context, id int) error
		TeacherGrants(ctx context.Context, teacherID int) ([]Grant, error)

		// HasAnyAuthority grants coarse read access on a (subject, division) scope.
		HasAnyAuthority(ctx context.Context, teacherID, subjectID, divisionID int) (bool, error)
		// HasTheoryAuthority grants division-wide read+write on theory fields.
		HasTheoryAuthority(ctx context.Context, teacherID, subjectID, divisionID int) (bool, error)
		// HasBatchCapability checks a grant with one of the given capabilities
		// for the exact batch.
		HasBatchCapability(ctx context.Context, teacherID, subjectID, divisionID, batchID int, caps ...string) (bool, error)
		// HasBatchAuthority resolves the student's batch and checks for a
		// Lab/Tutorial grant on it; an unassignable batch denies.
		HasBatchAuthority(ctx context.Context, teacherID, subjectID, studentID int) (bool, error)
		// ScopeAccess resolves the teacher's rights over a scope once, for
		// per-row categorization of division-wide listings.
		ScopeAccess(ctx context.Context, teacherID, subjectID, divisionID int) (ScopeAccess, error)
	}

	service struct {
		repo      Repository
		schoolSvc school.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, schoolSvc school.Service) Service {
	return &service{repo: repo, schoolSvc: schoolSvc}
}

func (svc *service) Create(ctx context.Context, ng NewGrant) (Grant, error) {
	if err := ng.Validate(); err != nil {
		return Grant{}, err
	}

	g := Grant{
		TeacherID:  ng.TeacherID,
		SubjectID:  ng.SubjectID,
		DivisionID: ng.DivisionID,
		Capability: ng.Capability,
	}
	if ng.Capability != CapabilityTheory && ng.BatchID != 0 {
		// the named batch must belong to the stated division
		batches, err := svc.schoolSvc.Roster(ctx, ng.DivisionID)
		if err != nil {
			return Grant{}, err
		}
		var found bool
		for _, b := range batches.Batches {
			if b.ID == ng.BatchID {
				found = true
				break
			}
		}
		if !found {
			return Grant{}, core.NewValidationError(ErrBatchMismatch,
				core.FieldError{Field: "batch_id", Error: ErrBatchMismatch.Error()})
		}
		g.BatchID = null.IntFrom(ng.BatchID)
	}
	return svc.repo.CreateGrant(ctx, g)
}

func (svc *service) Delete(ctx context.Context, id int) error {
	if _, err := svc.repo.GetGrantByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteGrant(ctx, id)
}

func (svc *service) TeacherGrants(ctx context.Context, teacherID int) ([]Grant, error) {
	return svc.repo.QueryTeacherGrants(ctx, teacherID)
}

func (svc *service) HasAnyAuthority(ctx context.Context, teacherID, subjectID, divisionID int) (bool, error) {
	grants, err := svc.repo.QueryGrants(ctx, teacherID, subjectID, divisionID)
	if err != nil {
		return false, err
	}
	return len(grants) > 0, nil
}

func (svc *service) HasTheoryAuthority(ctx context.Context, teacherID, subjectID, divisionID int) (bool, error) {
	grants, err := svc.repo.QueryGrants(ctx, teacherID, subjectID, divisionID)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Capability == CapabilityTheory {
			return true, nil
		}
	}
	return false, nil
}

func (svc *service) HasBatchCapability(ctx context.Context, teacherID, subjectID, divisionID, batchID int, caps ...string) (bool, error) {
	access, err := svc.ScopeAccess(ctx, teacherID, subjectID, divisionID)
	if err != nil {
		return false, err
	}
	return access.HasBatchCap(batchID, caps...), nil
}

func (svc *service) HasBatchAuthority(ctx context.Context, teacherID, subjectID, studentID int) (bool, error) {
	st, err := svc.schoolSvc.GetStudent(ctx, studentID)
	if err != nil {
		return false, err
	}
	if !st.DivisionID.Valid {
		return false, nil // no division, no batch, no authority
	}
	divisionID := int(st.DivisionID.Int)

	roster, err := svc.schoolSvc.Roster(ctx, divisionID)
	if err != nil {
		return false, err
	}
	batch := roster.BatchMap().BatchFor(studentID)
	if batch == nil {
		return false, nil // unassignable batch is a config gap; deny, never guess
	}
	return svc.HasBatchCapability(ctx, teacherID, subjectID, divisionID, batch.ID, CapabilityLab, CapabilityTutorial)
}

func (svc *service) ScopeAccess(ctx context.Context, teacherID, subjectID, divisionID int) (ScopeAccess, error) {
	grants, err := svc.repo.QueryGrants(ctx, teacherID, subjectID, divisionID)
	if err != nil {
		return ScopeAccess{}, err
	}
	return newScopeAccess(grants), nil
}
