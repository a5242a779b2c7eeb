package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core/authority"
)

type authorityRepository struct {
	db *DB
}

var _ authority.Repository = (*authorityRepository)(nil)

func NewAuthorityRepository(db *DB) authority.Repository {
	return &authorityRepository{db: db}
}

func (repo *authorityRepository) CreateGrant(ctx context.Context, g authority.Grant) (authority.Grant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g.ID = repo.db.nextID()
	repo.db.grants[g.ID] = &g
	return g, nil
}

func (repo *authorityRepository) GetGrantByID(ctx context.Context, id int) (authority.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.grants[id]; ok {
		return *g, nil
	}
	return authority.Grant{}, authority.ErrNotFound
}

func (repo *authorityRepository) QueryGrants(ctx context.Context, teacherID, subjectID, divisionID int) ([]authority.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var grants []authority.Grant
	for _, g := range repo.db.grants {
		if g.TeacherID == teacherID && g.SubjectID == subjectID && g.DivisionID == divisionID {
			grants = append(grants, *g)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return grants, nil
}

func (repo *authorityRepository) QueryTeacherGrants(ctx context.Context, teacherID int) ([]authority.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var grants []authority.Grant
	for _, g := range repo.db.grants {
		if g.TeacherID == teacherID {
			grants = append(grants, *g)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return grants, nil
}

func (repo *authorityRepository) DeleteGrant(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.grants, id)
	return nil
}
