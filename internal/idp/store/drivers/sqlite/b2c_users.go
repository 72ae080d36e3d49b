package sqlite

import (
	"context"
	"database/sql"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type b2cUsersRepo struct {
	db    dbtx
	orgID string
}

const b2cUserColumns = `id, org_id, email, display_name, password_hash, created_at, updated_at`

func (r *b2cUsersRepo) scanUser(row *sql.Row) (domain.B2CUser, error) {
	var u domain.B2CUser
	err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.DisplayName,
		&u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.B2CUser{}, mapNotFound(err)
	}
	return u, nil
}

func (r *b2cUsersRepo) GetB2CUserByID(ctx context.Context, id string) (domain.B2CUser, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+b2cUserColumns+`
		FROM b2c_users
		WHERE id = ? AND org_id = ?`, id, r.orgID)
	return r.scanUser(row)
}

func (r *b2cUsersRepo) GetB2CUserByEmail(ctx context.Context, email string) (domain.B2CUser, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+b2cUserColumns+`
		FROM b2c_users
		WHERE email = ? AND org_id = ?`, email, r.orgID)
	return r.scanUser(row)
}

func (r *b2cUsersRepo) CreateB2CUser(ctx context.Context, u domain.B2CUser) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO b2c_users (id, org_id, email, display_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, r.orgID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}
