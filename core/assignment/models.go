package assignment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// Assignment types. Defaulter is the remedial type offsetting a theory
// attendance shortfall; at most one per subject is meaningful.
const (
	TypeTheory         = "Theory"
	TypeHomeAssignment = "HomeAssignment"
	TypeLab            = "Lab"
	TypeTutorial       = "Tutorial"
	TypeDefaulter      = "Defaulter"
)

var AllTypes = []string{TypeTheory, TypeHomeAssignment, TypeLab, TypeTutorial, TypeDefaulter}

// Assignment lifecycle
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Submission statuses. A submission counts as submitted iff its status is
// "submitted" or "late".
const (
	SubmissionPending   = "pending"
	SubmissionSubmitted = "submitted"
	SubmissionLate      = "late"
)

type Assignment struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	SubjectID  int      `json:"subject_id"`
	TeacherID  int      `json:"teacher_id"`
	DivisionID int      `json:"division_id"`
	BatchID    null.Int `json:"batch_id"`

	Type         string      `json:"assignment_type"`
	Description  null.String `json:"description"`
	Instructions null.String `json:"instructions"`
	Deadline     time.Time   `json:"deadline"`
	MaxMarks     int         `json:"max_marks"`
	Status       string      `json:"status"`

	// opaque artifact references; never opened here
	FilePath     null.String `json:"assignment_file_path"`
	SolutionPath null.String `json:"solution_file_path"`

	CreatedAt time.Time `json:"created_at"` // UTC
}

func (a Assignment) IsPublished() bool { return a.Status == StatusPublished }

type Submission struct {
	ID           int `json:"id"`
	AssignmentID int `json:"assignment_id"`
	StudentID    int `json:"student_id"`

	Content  null.String  `json:"content"`
	FilePath null.String  `json:"file_path"`
	Marks    null.Float64 `json:"marks"`
	Score    null.Float64 `json:"score"` // externally computed correctness, 0.0-1.0
	Feedback null.String  `json:"feedback"`

	Status      string    `json:"status"`
	SubmittedAt null.Time `json:"submitted_at"`
}

// CountsAsSubmitted reports whether the submission satisfies its assignment
// for eligibility purposes.
func (s Submission) CountsAsSubmitted() bool {
	return s.Status == SubmissionSubmitted || s.Status == SubmissionLate
}

type NewAssignment struct {
	Title      string `json:"title" validate:"required"`
	SubjectID  int    `json:"subject_id" validate:"required"`
	DivisionID int    `json:"division_id" validate:"required"`
	BatchID    int    `json:"batch_id"` // required for Lab/Tutorial types

	Type         string    `json:"assignment_type" validate:"required"`
	Description  string    `json:"description"`
	Instructions string    `json:"instructions"`
	Deadline     time.Time `json:"deadline" validate:"required"`
	MaxMarks     int       `json:"max_marks" validate:"required,min=1"`

	FilePath     string `json:"assignment_file_path"`
	SolutionPath string `json:"solution_file_path"`
}

func (na *NewAssignment) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Type = core.CleanString(na.Type)
	return core.Validate.Struct(na)
}

type NewSubmission struct {
	Content  string `json:"content" validate:"required"`
	FilePath string `json:"file_path"`
}

func (ns *NewSubmission) Validate() error {
	return core.Validate.Struct(ns)
}

type GradeUpdate struct {
	Marks    float64 `json:"marks" validate:"min=0"`
	Feedback string  `json:"feedback"`
}

func (gu *GradeUpdate) Validate() error {
	gu.Feedback = core.CleanString(gu.Feedback)
	return core.Validate.Struct(gu)
}
