package authority

import (
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// Capabilities. A Theory grant covers the whole division; Lab and Tutorial
// grants cover exactly one batch.
const (
	CapabilityTheory   = "Theory"
	CapabilityLab      = "Lab"
	CapabilityTutorial = "Tutorial"
)

var AllCapabilities = []string{CapabilityTheory, CapabilityLab, CapabilityTutorial}

// Grant gives a teacher a capability over a subject within a division
// (and, for Lab/Tutorial, within one batch of it).
type Grant struct {
	ID         int      `json:"id"`
	TeacherID  int      `json:"teacher_id"`
	SubjectID  int      `json:"subject_id"`
	DivisionID int      `json:"division_id"`
	BatchID    null.Int `json:"batch_id"`
	Capability string   `json:"capability"`
}

type NewGrant struct {
	TeacherID  int    `json:"teacher_id" validate:"required"`
	SubjectID  int    `json:"subject_id" validate:"required"`
	DivisionID int    `json:"division_id" validate:"required"`
	BatchID    int    `json:"batch_id" validate:"required_if=Capability Lab,required_if=Capability Tutorial"`
	Capability string `json:"capability" validate:"required,oneof=Theory Lab Tutorial"`
}

func (ng *NewGrant) Validate() error {
	ng.Capability = core.CleanString(ng.Capability)
	return core.Validate.Struct(ng)
}

// ScopeAccess is a teacher's resolved rights over one (subject, division)
// scope, computed once and consulted per record row.
type ScopeAccess struct {
	HasAny    bool
	HasTheory bool

	batchCaps map[int]map[string]bool // batch ID -> capabilities held
}

// HasBatchCap reports whether the teacher holds any of the given capabilities
// for the exact batch.
func (a ScopeAccess) HasBatchCap(batchID int, caps ...string) bool {
	held, ok := a.batchCaps[batchID]
	if !ok {
		return false
	}
	for _, c := range caps {
		if held[c] {
			return true
		}
	}
	return false
}

// CanUpdateBatch reports write access on lab/tutorial fields for a student's
// resolved batch; a nil batch always denies.
func (a ScopeAccess) CanUpdateBatch(batchID *int) bool {
	if batchID == nil {
		return false
	}
	return a.HasBatchCap(*batchID, CapabilityLab, CapabilityTutorial)
}

func newScopeAccess(grants []Grant) ScopeAccess {
	access := ScopeAccess{batchCaps: make(map[int]map[string]bool)}
	for _, g := range grants {
		access.HasAny = true
		switch g.Capability {
		case CapabilityTheory:
			access.HasTheory = true
		case CapabilityLab, CapabilityTutorial:
			if g.BatchID.Valid {
				id := int(g.BatchID.Int)
				if access.batchCaps[id] == nil {
					access.batchCaps[id] = make(map[string]bool)
				}
				access.batchCaps[id][g.Capability] = true
			}
		}
	}
	return access
}
