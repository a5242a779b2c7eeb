package school

import (
	"fmt"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// Year levels
const (
	YearFirst  = "First Year"
	YearSecond = "Second Year"
	YearThird  = "Third Year"
	YearFourth = "Fourth Year"
)

var AllYears = []string{YearFirst, YearSecond, YearThird, YearFourth}

type Department struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Division struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DepartmentID int    `json:"department_id"`
	Year         string `json:"year"`
	AcademicYear int    `json:"academic_year"`
}

// Batch is a lab/tutorial subgroup of a Division. Batches of a division are
// totally ordered by name; membership is derived, never stored (see batch.go).
type Batch struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	DivisionID int    `json:"division_id"`
}

type Student struct {
	ID         int      `json:"id"`
	UserID     int      `json:"user_id"`
	Name       string   `json:"name"`
	RollNumber string   `json:"roll_number"` // empty when the registry has not issued one yet
	Year       string   `json:"year"`
	DivisionID null.Int `json:"division_id"`
}

type Teacher struct {
	ID     int    `json:"id"`
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
}

// Subject applicability flags are static configuration: the eligibility rules
// read them, never write them.
type Subject struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DepartmentID int    `json:"department_id"`
	Year         string `json:"year"`

	HasCIE            bool `json:"has_cie"`
	HasHomeAssignment bool `json:"has_home_assignment"`
	HasTutorial       bool `json:"has_tutorial"`
	HasPBL            bool `json:"has_pbl"`
	HasLab            bool `json:"has_lab"`
	HasPresentation   bool `json:"has_presentation"`
	HasCertificate    bool `json:"has_certificate"`

	AttendanceThreshold int `json:"attendance_threshold"`
}

// NewDivision provisions a division together with its batches, named
// "<division><i>" in creation order (so batch names sort by rank).
type NewDivision struct {
	Name         string `json:"name" validate:"required"`
	DepartmentID int    `json:"department_id" validate:"required"`
	Year         string `json:"year" validate:"required"`
	AcademicYear int    `json:"academic_year" validate:"required"`
	NumBatches   int    `json:"num_batches" validate:"required,min=1,max=26"`
}

func (nd *NewDivision) Validate() error {
	nd.Name = core.CleanString(nd.Name)
	return core.Validate.Struct(nd)
}

func (nd NewDivision) BatchNames() []string {
	names := make([]string, 0, nd.NumBatches)
	for i := 1; i <= nd.NumBatches; i++ {
		names = append(names, fmt.Sprintf("%s%d", nd.Name, i))
	}
	return names
}

type NewStudent struct {
	UserID     int    `json:"user_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	RollNumber string `json:"roll_number" validate:"omitempty,rollnum"`
	Year       string `json:"year" validate:"omitempty"`
	DivisionID int    `json:"division_id"` // 0 = not enrolled in a division yet
}

func (ns *NewStudent) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.RollNumber = core.CleanString(ns.RollNumber, true /* lower */)
	return core.Validate.Struct(ns)
}

type NewTeacher struct {
	UserID int    `json:"user_id" validate:"required"`
	Name   string `json:"name" validate:"required"`
}

func (nt *NewTeacher) Validate() error {
	nt.Name = core.CleanString(nt.Name)
	return core.Validate.Struct(nt)
}

type NewSubject struct {
	Name         string `json:"name" validate:"required"`
	DepartmentID int    `json:"department_id" validate:"required"`
	Year         string `json:"year" validate:"required"`

	HasCIE            bool `json:"has_cie"`
	HasHomeAssignment bool `json:"has_home_assignment"`
	HasTutorial       bool `json:"has_tutorial"`
	HasPBL            bool `json:"has_pbl"`
	HasLab            bool `json:"has_lab"`
	HasPresentation   bool `json:"has_presentation"`
	HasCertificate    bool `json:"has_certificate"`

	AttendanceThreshold int `json:"attendance_threshold" validate:"omitempty,min=0,max=100"`
}

func (ns *NewSubject) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	return core.Validate.Struct(ns)
}
