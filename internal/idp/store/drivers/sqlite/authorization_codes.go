package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type authorizationCodesRepo struct {
	db    dbtx
	orgID string
}

const authorizationCodeColumns = `id, code_hash, subject_type, subject_id, client_id, redirect_uri, scopes, state, expires_at, used_at, created_at`

func scanAuthorizationCode(scan func(dest ...any) error) (domain.AuthorizationCode, error) {
	var (
		code        domain.AuthorizationCode
		subjectType string
		scopes      string
		usedAt      sql.NullTime
	)
	err := scan(&code.ID, &code.CodeHash, &subjectType, &code.Subject.ID,
		&code.ClientID, &code.RedirectURI, &scopes, &code.State,
		&code.ExpiresAt, &usedAt, &code.CreatedAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	code.Subject.Type = domain.SubjectType(subjectType)
	code.Scopes = splitFields(scopes)
	code.UsedAt = mapNullTimePtr(usedAt)
	return code, nil
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	// INSERT..SELECT through the clients table so a client id from another
	// tenant produces zero rows instead of a cross-org write.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (id, code_hash, subject_type, subject_id, client_id, redirect_uri, scopes, state, expires_at, created_at)
		SELECT ?, ?, ?, ?, id, ?, ?, ?, ?, ?
		FROM clients
		WHERE id = ? AND org_id = ?`,
		code.ID, code.CodeHash, code.Subject.Type.String(), code.Subject.ID,
		code.RedirectURI, joinFields(code.Scopes), code.State,
		code.ExpiresAt, code.CreatedAt,
		code.ClientID, r.orgID)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
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

// ConsumeAuthorizationCode marks the code used and returns its record in one
// logical step. The conditional UPDATE is the linearization point: under
// concurrent redemption exactly one caller observes rows-affected == 1.
func (r *authorizationCodesRepo) ConsumeAuthorizationCode(ctx context.Context, codeHash, clientID, redirectURI string, now time.Time) (domain.AuthorizationCode, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorization_codes
		SET used_at = ?
		WHERE code_hash = ?
		  AND client_id = ?
		  AND redirect_uri = ?
		  AND used_at IS NULL
		  AND expires_at > ?
		  AND client_id IN (SELECT id FROM clients WHERE org_id = ?)`,
		now, codeHash, clientID, redirectURI, now, r.orgID)
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.AuthorizationCode{}, err
	}

	if n == 0 {
		// Distinguish a code that never existed in this tenant from one
		// whose guard failed (already used, expired, or presented with the
		// wrong client or redirect URI).
		var exists int
		err := r.db.QueryRowContext(ctx, `
			SELECT 1
			FROM authorization_codes ac
			JOIN clients c ON c.id = ac.client_id
			WHERE ac.code_hash = ? AND c.org_id = ?`,
			codeHash, r.orgID).Scan(&exists)
		if err != nil {
			return domain.AuthorizationCode{}, mapNotFound(err)
		}
		return domain.AuthorizationCode{}, store.ErrAlreadyConsumed
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+authorizationCodeColumns+`
		FROM authorization_codes
		WHERE code_hash = ?`, codeHash)
	return scanAuthorizationCode(row.Scan)
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM authorization_codes
		WHERE expires_at <= ?
		  AND client_id IN (SELECT id FROM clients WHERE org_id = ?)`,
		now, r.orgID)
	return err
}
