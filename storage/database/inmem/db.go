package inmemdb

import (
	"sync"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

// DB is a map-backed store for tests and local development. One lock guards
// all tables so cross-table cascades stay consistent.
type DB struct {
	mutex sync.RWMutex
	seq   int

	users       map[int]*user.User
	departments map[int]*school.Department
	divisions   map[int]*school.Division
	batches     map[int]*school.Batch
	students    map[int]*school.Student
	teachers    map[int]*school.Teacher
	subjects    map[int]*school.Subject
	grants      map[int]*authority.Grant
	assignments map[int]*assignment.Assignment
	submissions map[int]*assignment.Submission
	records     map[int]*noc.StatusRecord
}

func Open() (*DB, error) {
	return &DB{
		users:       make(map[int]*user.User),
		departments: make(map[int]*school.Department),
		divisions:   make(map[int]*school.Division),
		batches:     make(map[int]*school.Batch),
		students:    make(map[int]*school.Student),
		teachers:    make(map[int]*school.Teacher),
		subjects:    make(map[int]*school.Subject),
		grants:      make(map[int]*authority.Grant),
		assignments: make(map[int]*assignment.Assignment),
		submissions: make(map[int]*assignment.Submission),
		records:     make(map[int]*noc.StatusRecord),
	}, nil
}

// nextID hands out table-wide unique ids; callers hold the write lock.
func (db *DB) nextID() int {
	db.seq++
	return db.seq
}
