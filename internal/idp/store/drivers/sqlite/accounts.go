package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type accountsRepo struct {
	db dbtx
}

const accountColumns = `id, email, display_name, password_hash, totp_secret, totp_enabled, created_at, updated_at`

func (r *accountsRepo) scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a           domain.Account
		totpSecret  sql.NullString
		totpEnabled sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash,
		&totpSecret, &totpEnabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.TOTPSecret = mapNullStringPtr(totpSecret)
	a.TOTPEnabled = mapNullTimePtr(totpEnabled)
	return a, nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = ?`, id)
	return r.scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = ?`, email)
	return r.scanAccount(row)
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.DisplayName, a.PasswordHash, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *accountsRepo) UpdateTOTPSecret(ctx context.Context, accountID, secret string) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET totp_secret = ?, totp_enabled = NULL, updated_at = ?
		WHERE id = ?`,
		secret, time.Now().UTC(), accountID)
}

func (r *accountsRepo) EnableTOTP(ctx context.Context, accountID string) error {
	now := time.Now().UTC()
	return r.exec(ctx, `
		UPDATE accounts
		SET totp_enabled = ?, updated_at = ?
		WHERE id = ? AND totp_secret IS NOT NULL`,
		now, now, accountID)
}

func (r *accountsRepo) DisableTOTP(ctx context.Context, accountID string) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET totp_secret = NULL, totp_enabled = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), accountID)
}

// exec runs an update against one account row and maps a zero-row result to
// ErrNotFound.
func (r *accountsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
