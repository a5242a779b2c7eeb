package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/school"
)

type nocRepository struct {
	db *DB
}

var _ noc.Repository = (*nocRepository)(nil)

func NewNocRepository(db *DB) noc.Repository {
	return &nocRepository{db: db}
}

func (repo *nocRepository) CreateMissingRecords(ctx context.Context, recs []noc.StatusRecord) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	existing := make(map[[2]int]bool, len(repo.db.records))
	for _, rec := range repo.db.records {
		existing[[2]int{rec.StudentID, rec.SubjectID}] = true
	}

	var created int
	for _, rec := range recs {
		key := [2]int{rec.StudentID, rec.SubjectID}
		if existing[key] {
			continue
		}
		rec := rec
		rec.ID = repo.db.nextID()
		repo.db.records[rec.ID] = &rec
		existing[key] = true
		created++
	}
	return created, nil
}

func (repo *nocRepository) GetRecordByID(ctx context.Context, id int) (noc.StatusRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.records[id]; ok {
		return *rec, nil
	}
	return noc.StatusRecord{}, noc.ErrRecordNotFound
}

func (repo *nocRepository) GetRecord(ctx context.Context, studentID, subjectID int) (noc.StatusRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, rec := range repo.db.records {
		if rec.StudentID == studentID && rec.SubjectID == subjectID {
			return *rec, nil
		}
	}
	return noc.StatusRecord{}, noc.ErrRecordNotFound
}

// scopeStudentIDs resolves the students of a division; callers hold the lock.
func (repo *nocRepository) scopeStudentIDs(divisionID int) map[int]bool {
	ids := make(map[int]bool)
	for _, st := range repo.db.students {
		if st.DivisionID.Valid && int(st.DivisionID.Int) == divisionID {
			ids[st.ID] = true
		}
	}
	return ids
}

func (repo *nocRepository) QueryScopeRecords(ctx context.Context, subjectID, divisionID int) ([]noc.StatusRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	inScope := repo.scopeStudentIDs(divisionID)
	var recs []noc.StatusRecord
	for _, rec := range repo.db.records {
		if rec.SubjectID == subjectID && inScope[rec.StudentID] {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (repo *nocRepository) QueryStudentRecords(ctx context.Context, studentID int) ([]noc.StatusRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var recs []noc.StatusRecord
	for _, rec := range repo.db.records {
		if rec.StudentID == studentID {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (repo *nocRepository) UpdateRecord(ctx context.Context, rec noc.StatusRecord) (noc.StatusRecord, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.records[rec.ID]; !ok {
		return noc.StatusRecord{}, noc.ErrRecordNotFound
	}
	repo.db.records[rec.ID] = &rec
	return rec, nil
}

func (repo *nocRepository) UpdateTrackStatuses(ctx context.Context, recs []noc.StatusRecord) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, rec := range recs {
		orig, ok := repo.db.records[rec.ID]
		if !ok {
			return noc.ErrRecordNotFound
		}
		orig.NocStatus = rec.NocStatus
		orig.Reason = rec.Reason
		orig.LastUpdated = rec.LastUpdated
	}
	return nil
}

func (repo *nocRepository) BulkSetTheoryAttendance(ctx context.Context, subjectID, divisionID int, pct float64) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	inScope := repo.scopeStudentIDs(divisionID)
	var count int
	for _, rec := range repo.db.records {
		if rec.SubjectID == subjectID && inScope[rec.StudentID] {
			rec.TheoryAttendance = pct
			count++
		}
	}
	return count, nil
}

func (repo *nocRepository) BulkSetCIE(ctx context.Context, subjectID, divisionID, marks int) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	inScope := repo.scopeStudentIDs(divisionID)
	var count int
	for _, rec := range repo.db.records {
		if rec.SubjectID == subjectID && inScope[rec.StudentID] {
			rec.MarksCIE = null.IntFrom(marks)
			count++
		}
	}
	return count, nil
}

func (repo *nocRepository) BulkSetLabAttendance(ctx context.Context, subjectID int, studentIDs []int, pct float64) (int, error) {
	return repo.bulkSetByStudents(subjectID, studentIDs, func(rec *noc.StatusRecord) {
		rec.LabAttendance = null.Float64From(pct)
	})
}

func (repo *nocRepository) BulkSetTutorialAttendance(ctx context.Context, subjectID int, studentIDs []int, pct float64) (int, error) {
	return repo.bulkSetByStudents(subjectID, studentIDs, func(rec *noc.StatusRecord) {
		rec.TutorialAttendance = null.Float64From(pct)
	})
}

func (repo *nocRepository) bulkSetByStudents(subjectID int, studentIDs []int, set func(*noc.StatusRecord)) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	targets := make(map[int]bool, len(studentIDs))
	for _, id := range studentIDs {
		targets[id] = true
	}
	var count int
	for _, rec := range repo.db.records {
		if rec.SubjectID == subjectID && targets[rec.StudentID] {
			set(rec)
			count++
		}
	}
	return count, nil
}

func (repo *nocRepository) QueryScopeAssignments(ctx context.Context, subjectID, divisionID int) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var assignments []assignment.Assignment
	for _, a := range repo.db.assignments {
		if a.SubjectID == subjectID && a.DivisionID == divisionID {
			assignments = append(assignments, *a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

func (repo *nocRepository) QuerySubmittedAssignmentIDs(ctx context.Context, studentIDs, assignmentIDs []int) (map[int]map[int]bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make(map[int]bool, len(studentIDs))
	for _, id := range studentIDs {
		students[id] = true
	}
	wanted := make(map[int]bool, len(assignmentIDs))
	for _, id := range assignmentIDs {
		wanted[id] = true
	}

	sets := make(map[int]map[int]bool)
	for _, sub := range repo.db.submissions {
		if !students[sub.StudentID] || !wanted[sub.AssignmentID] || !sub.CountsAsSubmitted() {
			continue
		}
		if sets[sub.StudentID] == nil {
			sets[sub.StudentID] = make(map[int]bool)
		}
		sets[sub.StudentID][sub.AssignmentID] = true
	}
	return sets, nil
}

func (repo *nocRepository) QueryEnrolledStudents(ctx context.Context) ([]school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var students []school.Student
	for _, st := range repo.db.students {
		if st.DivisionID.Valid {
			students = append(students, *st)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}
