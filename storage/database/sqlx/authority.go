package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/authority"
)

type grantRow struct {
	ID         int      `db:"id"`
	TeacherID  int      `db:"teacher_id"`
	SubjectID  int      `db:"subject_id"`
	DivisionID int      `db:"division_id"`
	BatchID    null.Int `db:"batch_id"`
	Capability string   `db:"capability"`
}

func (r grantRow) unpack() authority.Grant {
	return authority.Grant{
		ID:         r.ID,
		TeacherID:  r.TeacherID,
		SubjectID:  r.SubjectID,
		DivisionID: r.DivisionID,
		BatchID:    r.BatchID,
		Capability: r.Capability,
	}
}

type authorityRepository struct {
	db *sqlx.DB
}

var _ authority.Repository = (*authorityRepository)(nil)

func NewAuthorityRepository(db *sql.DB) authority.Repository {
	return &authorityRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *authorityRepository) CreateGrant(ctx context.Context, g authority.Grant) (authority.Grant, error) {
	query := `
INSERT INTO authority_grants (teacher_id, subject_id, division_id, batch_id, capability)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	err := repo.db.GetContext(ctx, &g.ID, query, g.TeacherID, g.SubjectID, g.DivisionID, g.BatchID, g.Capability)
	if err != nil {
		return authority.Grant{}, errors.Wrap(err, "inserting grant")
	}
	return g, nil
}

func (repo *authorityRepository) GetGrantByID(ctx context.Context, id int) (authority.Grant, error) {
	var row grantRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM authority_grants WHERE id = $1`, id); err != nil {
		return authority.Grant{}, trapNoRowsErr(err, authority.ErrNotFound, "getting grant")
	}
	return row.unpack(), nil
}

func (repo *authorityRepository) QueryGrants(ctx context.Context, teacherID, subjectID, divisionID int) ([]authority.Grant, error) {
	var rows []grantRow
	query := `
SELECT * FROM authority_grants
WHERE teacher_id = $1 AND subject_id = $2 AND division_id = $3
ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query, teacherID, subjectID, divisionID); err != nil {
		return nil, errors.Wrap(err, "querying grants")
	}
	return unpackGrants(rows), nil
}

func (repo *authorityRepository) QueryTeacherGrants(ctx context.Context, teacherID int) ([]authority.Grant, error) {
	var rows []grantRow
	query := `SELECT * FROM authority_grants WHERE teacher_id = $1 ORDER BY id`
	if err := repo.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying teacher grants")
	}
	return unpackGrants(rows), nil
}

func (repo *authorityRepository) DeleteGrant(ctx context.Context, id int) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM authority_grants WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting grant")
	}
	return nil
}

func unpackGrants(rows []grantRow) []authority.Grant {
	grants := make([]authority.Grant, 0, len(rows))
	for _, r := range rows {
		grants = append(grants, r.unpack())
	}
	return grants
}
