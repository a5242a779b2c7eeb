package noc

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// NOC statuses. Granted and Refused are terminal: recomputation never touches
// them; only an explicit authorized action may set or change them.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusGranted   = "Granted"
	StatusRefused   = "Refused"
)

func IsTerminal(status string) bool {
	return status == StatusGranted || status == StatusRefused
}

// SCE component statuses
const (
	SCEPending   = "pending"
	SCECompleted = "completed"
	SCELate      = "late"
)

// Track identifies one of the record's independent NOC status fields.
type Track int

const (
	TrackTheory Track = iota
	TrackLabTut
)

var AllTracks = []Track{TrackTheory, TrackLabTut}

func (t Track) String() string {
	switch t {
	case TrackTheory:
		return "Theory"
	case TrackLabTut:
		return "LabTutorial"
	}
	return "Unknown"
}

func ParseTrack(s string) (Track, error) {
	switch s {
	case "Theory":
		return TrackTheory, nil
	case "LabTutorial", "Lab", "Tutorial": // lab and tutorial share one track
		return TrackLabTut, nil
	}
	return 0, ErrUnknownTrack
}

// TrackStatuses is the fixed record of per-track NOC statuses. All terminal
// lock and recompute logic goes through Get/Set so the tracks stay uniform.
type TrackStatuses struct {
	Theory string `json:"theory"`
	LabTut string `json:"lab_tutorial"`
}

func (ts *TrackStatuses) Get(t Track) string {
	if t == TrackLabTut {
		return ts.LabTut
	}
	return ts.Theory
}

func (ts *TrackStatuses) Set(t Track, status string) {
	if t == TrackLabTut {
		ts.LabTut = status
		return
	}
	ts.Theory = status
}

// StatusRecord is the compliance record: one per (student, subject), created
// eagerly on enrollment and mutated only by field edits and recomputation.
type StatusRecord struct {
	ID        int `json:"id"`
	StudentID int `json:"student_id"`
	SubjectID int `json:"subject_id"`

	TheoryAttendance   float64      `json:"theory_attendance"`
	LabAttendance      null.Float64 `json:"lab_attendance"`
	TutorialAttendance null.Float64 `json:"tutorial_attendance"`
	MarksCIE           null.Int     `json:"marks_cie"`

	PBLStatus           string `json:"pbl_status"`
	PresentationStatus  string `json:"presentation_status"`
	CertificationStatus string `json:"certification_status"`

	NocStatus TrackStatuses `json:"noc_status"`
	Reason    string        `json:"reason"`

	LastUpdated time.Time `json:"last_updated"` // UTC
}

// NewStatusRecord returns the zero-valued record a student starts a subject with.
func NewStatusRecord(studentID, subjectID int) StatusRecord {
	return StatusRecord{
		StudentID:           studentID,
		SubjectID:           subjectID,
		PBLStatus:           SCEPending,
		PresentationStatus:  SCEPending,
		CertificationStatus: SCEPending,
		NocStatus:           TrackStatuses{Theory: StatusPending, LabTut: StatusPending},
		LastUpdated:         time.Now().UTC(),
	}
}

// SCEUpdate is the whitelisted patch for SCE components and CIE marks; nil
// fields are left untouched.
type SCEUpdate struct {
	StudentID int `json:"student_id" validate:"required"`
	SubjectID int `json:"subject_id" validate:"required"`

	MarksCIE            *int    `json:"marks_cie" validate:"omitempty,min=0"`
	PBLStatus           *string `json:"pbl_status" validate:"omitempty,oneof=pending completed late"`
	PresentationStatus  *string `json:"presentation_status" validate:"omitempty,oneof=pending completed late"`
	CertificationStatus *string `json:"certification_status" validate:"omitempty,oneof=pending completed late"`
}

func (su *SCEUpdate) Validate() error { return core.Validate.Struct(su) }

func (su SCEUpdate) apply(rec *StatusRecord) {
	if su.MarksCIE != nil {
		rec.MarksCIE = null.IntFrom(*su.MarksCIE)
	}
	if su.PBLStatus != nil {
		rec.PBLStatus = *su.PBLStatus
	}
	if su.PresentationStatus != nil {
		rec.PresentationStatus = *su.PresentationStatus
	}
	if su.CertificationStatus != nil {
		rec.CertificationStatus = *su.CertificationStatus
	}
}

// AttendanceUpdate patches one attendance figure on one record.
type AttendanceUpdate struct {
	StudentID int     `json:"student_id" validate:"required"`
	SubjectID int     `json:"subject_id" validate:"required"`
	Percent   float64 `json:"percent" validate:"percent"`
}

func (au *AttendanceUpdate) Validate() error { return core.Validate.Struct(au) }

// TerminalStatusUpdate finalizes a track. Only Granted/Refused are accepted.
type TerminalStatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=Granted Refused"`
	Reason string `json:"reason"`
}

func (tu *TerminalStatusUpdate) Validate() error {
	tu.Reason = core.CleanString(tu.Reason)
	if err := core.Validate.Struct(tu); err != nil {
		return err
	}
	if !IsTerminal(tu.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// BackfillResult summarizes an idempotent backfill run.
type BackfillResult struct {
	RecordsCreated    int `json:"records_created"`
	StudentsProcessed int `json:"students_processed"`
	StudentsSkipped   int `json:"students_skipped"`
}
