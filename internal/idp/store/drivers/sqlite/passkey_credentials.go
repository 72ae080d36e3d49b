package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type passkeyCredentialsRepo struct {
	db    dbtx
	orgID string
}

const passkeyCredentialColumns = `pc.credential_id, pc.user_id, pc.public_key, pc.attestation_type, pc.transports, pc.aaguid, pc.sign_count, pc.device_name, pc.clone_flagged, pc.created_at, pc.last_used_at`

func scanPasskeyCredential(scan func(dest ...any) error) (domain.PasskeyCredential, error) {
	var (
		c          domain.PasskeyCredential
		transports string
		aaguid     []byte
		lastUsedAt sql.NullTime
	)
	err := scan(&c.CredentialID, &c.UserID, &c.PublicKey, &c.AttestationType,
		&transports, &aaguid, &c.SignCount, &c.DeviceName, &c.CloneFlagged,
		&c.CreatedAt, &lastUsedAt)
	if err != nil {
		return domain.PasskeyCredential{}, mapNotFound(err)
	}
	c.Transports = splitFields(transports)
	c.AAGUID = aaguid
	c.LastUsedAt = mapNullTimePtr(lastUsedAt)
	return c, nil
}

func (r *passkeyCredentialsRepo) CreatePasskeyCredential(ctx context.Context, c domain.PasskeyCredential) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO passkey_credentials (credential_id, user_id, public_key, attestation_type, transports, aaguid, sign_count, device_name, clone_flagged, created_at)
		SELECT ?, id, ?, ?, ?, ?, ?, ?, ?, ?
		FROM b2b_users
		WHERE id = ? AND org_id = ?`,
		c.CredentialID, c.PublicKey, c.AttestationType, joinFields(c.Transports),
		c.AAGUID, c.SignCount, c.DeviceName, c.CloneFlagged, c.CreatedAt,
		c.UserID, r.orgID)
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

func (r *passkeyCredentialsRepo) GetPasskeyCredentialByID(ctx context.Context, credentialID string) (domain.PasskeyCredential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+passkeyCredentialColumns+`
		FROM passkey_credentials pc
		JOIN b2b_users u ON u.id = pc.user_id
		WHERE pc.credential_id = ? AND u.org_id = ?`,
		credentialID, r.orgID)
	return scanPasskeyCredential(row.Scan)
}

func (r *passkeyCredentialsRepo) ListPasskeyCredentialsByUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+passkeyCredentialColumns+`
		FROM passkey_credentials pc
		JOIN b2b_users u ON u.id = pc.user_id
		WHERE pc.user_id = ? AND u.org_id = ?
		ORDER BY pc.created_at`,
		userID, r.orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.PasskeyCredential
	for rows.Next() {
		c, err := scanPasskeyCredential(rows.Scan)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// DeletePasskeyCredential removes one credential owned by userID. Deleting
// an absent credential succeeds; revocation is idempotent.
func (r *passkeyCredentialsRepo) DeletePasskeyCredential(ctx context.Context, userID, credentialID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM passkey_credentials
		WHERE credential_id = ?
		  AND user_id = ?
		  AND user_id IN (SELECT id FROM b2b_users WHERE org_id = ?)`,
		credentialID, userID, r.orgID)
	return err
}

// AdvanceSignCount applies the counter monotonicity rule as a conditional
// update. The guard accepts a strictly increasing counter, or zero against
// zero for authenticators that never increment. A failed guard on an
// existing credential returns ErrAlreadyConsumed, the caller's clone signal.
func (r *passkeyCredentialsRepo) AdvanceSignCount(ctx context.Context, credentialID string, newCount uint32, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE passkey_credentials
		SET sign_count = ?, last_used_at = ?
		WHERE credential_id = ?
		  AND (sign_count < ? OR (sign_count = 0 AND ? = 0))
		  AND user_id IN (SELECT id FROM b2b_users WHERE org_id = ?)`,
		newCount, usedAt, credentialID, newCount, newCount, r.orgID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM passkey_credentials pc
		JOIN b2b_users u ON u.id = pc.user_id
		WHERE pc.credential_id = ? AND u.org_id = ?`,
		credentialID, r.orgID).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrAlreadyConsumed
}

func (r *passkeyCredentialsRepo) FlagClone(ctx context.Context, credentialID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE passkey_credentials
		SET clone_flagged = 1
		WHERE credential_id = ?
		  AND user_id IN (SELECT id FROM b2b_users WHERE org_id = ?)`,
		credentialID, r.orgID)
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
