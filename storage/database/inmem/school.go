package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateDepartment(ctx context.Context, dep school.Department) (school.Department, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	dep.ID = repo.db.nextID()
	repo.db.departments[dep.ID] = &dep
	return dep, nil
}

func (repo *schoolRepository) GetDepartmentByID(ctx context.Context, id int) (school.Department, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if dep, ok := repo.db.departments[id]; ok {
		return *dep, nil
	}
	return school.Department{}, school.ErrDepartmentNotFound
}

func (repo *schoolRepository) CreateDivision(ctx context.Context, div school.Division, batchNames []string) (school.Division, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	div.ID = repo.db.nextID()
	repo.db.divisions[div.ID] = &div
	for _, name := range batchNames {
		b := school.Batch{ID: repo.db.nextID(), Name: name, DivisionID: div.ID}
		repo.db.batches[b.ID] = &b
	}
	return div, nil
}

func (repo *schoolRepository) GetDivisionByID(ctx context.Context, id int) (school.Division, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if div, ok := repo.db.divisions[id]; ok {
		return *div, nil
	}
	return school.Division{}, school.ErrDivisionNotFound
}

func (repo *schoolRepository) QueryDivisionBatches(ctx context.Context, divisionID int) ([]school.Batch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var batches []school.Batch
	for _, b := range repo.db.batches {
		if b.DivisionID == divisionID {
			batches = append(batches, *b)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Name < batches[j].Name })
	return batches, nil
}

func (repo *schoolRepository) QueryDivisionStudents(ctx context.Context, divisionID int) ([]school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var students []school.Student
	for _, st := range repo.db.students {
		if st.DivisionID.Valid && int(st.DivisionID.Int) == divisionID {
			students = append(students, *st)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].RollNumber != students[j].RollNumber {
			return students[i].RollNumber < students[j].RollNumber
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, st school.Student) (school.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	st.ID = repo.db.nextID()
	repo.db.students[st.ID] = &st
	return st, nil
}

func (repo *schoolRepository) GetStudentByID(ctx context.Context, id int) (school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if st, ok := repo.db.students[id]; ok {
		return *st, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) GetStudentByUserID(ctx context.Context, userID int) (school.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, st := range repo.db.students {
		if st.UserID == userID {
			return *st, nil
		}
	}
	return school.Student{}, school.ErrStudentNotFound
}

// DeleteStudent cascades to the student's submissions and compliance records,
// matching the SQL schema's ON DELETE CASCADE.
func (repo *schoolRepository) DeleteStudent(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[id]; !ok {
		return school.ErrStudentNotFound
	}
	for sid, sub := range repo.db.submissions {
		if sub.StudentID == id {
			delete(repo.db.submissions, sid)
		}
	}
	for rid, rec := range repo.db.records {
		if rec.StudentID == id {
			delete(repo.db.records, rid)
		}
	}
	delete(repo.db.students, id)
	return nil
}

func (repo *schoolRepository) CreateTeacher(ctx context.Context, t school.Teacher) (school.Teacher, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = repo.db.nextID()
	repo.db.teachers[t.ID] = &t
	return t, nil
}

func (repo *schoolRepository) GetTeacherByID(ctx context.Context, id int) (school.Teacher, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.teachers[id]; ok {
		return *t, nil
	}
	return school.Teacher{}, school.ErrTeacherNotFound
}

func (repo *schoolRepository) GetTeacherByUserID(ctx context.Context, userID int) (school.Teacher, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.teachers {
		if t.UserID == userID {
			return *t, nil
		}
	}
	return school.Teacher{}, school.ErrTeacherNotFound
}

func (repo *schoolRepository) CreateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.subjects {
		if s.Name == sub.Name && s.DepartmentID == sub.DepartmentID && s.Year == sub.Year {
			return school.Subject{}, school.ErrSubjectExists
		}
	}
	sub.ID = repo.db.nextID()
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *schoolRepository) GetSubjectByID(ctx context.Context, id int) (school.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok {
		return *sub, nil
	}
	return school.Subject{}, school.ErrSubjectNotFound
}

func (repo *schoolRepository) QuerySubjects(ctx context.Context, departmentID int, year string) ([]school.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var subjects []school.Subject
	for _, sub := range repo.db.subjects {
		if sub.DepartmentID == departmentID && sub.Year == year {
			subjects = append(subjects, *sub)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}
