package sqlite

import (
	"context"
	"database/sql"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type b2bUsersRepo struct {
	db    dbtx
	orgID string
}

const b2bUserColumns = `id, org_id, username, display_name, password_hash, created_at, updated_at`

func (r *b2bUsersRepo) scanUser(row *sql.Row) (domain.B2BUser, error) {
	var u domain.B2BUser
	err := row.Scan(&u.ID, &u.OrgID, &u.Username, &u.DisplayName,
		&u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.B2BUser{}, mapNotFound(err)
	}
	return u, nil
}

func (r *b2bUsersRepo) GetB2BUserByID(ctx context.Context, id string) (domain.B2BUser, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+b2bUserColumns+`
		FROM b2b_users
		WHERE id = ? AND org_id = ?`, id, r.orgID)
	return r.scanUser(row)
}

func (r *b2bUsersRepo) GetB2BUserByUsername(ctx context.Context, username string) (domain.B2BUser, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+b2bUserColumns+`
		FROM b2b_users
		WHERE username = ? AND org_id = ?`, username, r.orgID)
	return r.scanUser(row)
}

func (r *b2bUsersRepo) CreateB2BUser(ctx context.Context, u domain.B2BUser) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO b2b_users (id, org_id, username, display_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, r.orgID, u.Username, u.DisplayName, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}
