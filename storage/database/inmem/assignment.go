package inmemdb

import (
	"context"
	"net/mail"
	"sort"

	"github.com/trezcool/darasa/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a.ID = repo.db.nextID()
	repo.db.assignments[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) GetAssignmentByID(ctx context.Context, id int) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) QueryAssignmentsBySubject(ctx context.Context, subjectID int) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var assignments []assignment.Assignment
	for _, a := range repo.db.assignments {
		if a.SubjectID == subjectID {
			assignments = append(assignments, *a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

func (repo *assignmentRepository) QueryAssignmentsByTeacher(ctx context.Context, teacherID int) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var assignments []assignment.Assignment
	for _, a := range repo.db.assignments {
		if a.TeacherID == teacherID {
			assignments = append(assignments, *a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

func (repo *assignmentRepository) SetAssignmentStatus(ctx context.Context, id int, status string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a, ok := repo.db.assignments[id]
	if !ok {
		return assignment.ErrNotFound
	}
	a.Status = status
	return nil
}

// DeleteAssignment cascades to the assignment's submissions, matching the SQL
// schema's ON DELETE CASCADE.
func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for sid, sub := range repo.db.submissions {
		if sub.AssignmentID == id {
			delete(repo.db.submissions, sid)
		}
	}
	delete(repo.db.assignments, id)
	return nil
}

func (repo *assignmentRepository) CreatePendingSubmissions(ctx context.Context, assignmentID int, studentIDs []int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	seeded := make(map[int]bool)
	for _, sub := range repo.db.submissions {
		if sub.AssignmentID == assignmentID {
			seeded[sub.StudentID] = true
		}
	}
	for _, studentID := range studentIDs {
		if seeded[studentID] {
			continue
		}
		sub := assignment.Submission{
			ID:           repo.db.nextID(),
			AssignmentID: assignmentID,
			StudentID:    studentID,
			Status:       assignment.SubmissionPending,
		}
		repo.db.submissions[sub.ID] = &sub
	}
	return nil
}

func (repo *assignmentRepository) GetSubmission(ctx context.Context, assignmentID, studentID int) (assignment.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, sub := range repo.db.submissions {
		if sub.AssignmentID == assignmentID && sub.StudentID == studentID {
			return *sub, nil
		}
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) GetSubmissionByID(ctx context.Context, id int) (assignment.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return *sub, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) QueryAcceptedSubmissions(ctx context.Context, assignmentID int) ([]assignment.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var subs []assignment.Submission
	for _, sub := range repo.db.submissions {
		if sub.AssignmentID == assignmentID && sub.CountsAsSubmitted() {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

func (repo *assignmentRepository) UpdateSubmission(ctx context.Context, sub assignment.Submission) (assignment.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.submissions[sub.ID]; !ok {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *assignmentRepository) QueryStudentEmails(ctx context.Context, studentIDs []int) ([]mail.Address, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var addrs []mail.Address
	for _, id := range studentIDs {
		st, ok := repo.db.students[id]
		if !ok {
			continue
		}
		if usr, ok := repo.db.users[st.UserID]; ok {
			addrs = append(addrs, mail.Address{Name: st.Name, Address: usr.Email})
		}
	}
	return addrs, nil
}
