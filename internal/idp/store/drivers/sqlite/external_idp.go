package sqlite

import (
	"context"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type externalIdpRepo struct {
	db    dbtx
	orgID string
}

// UpsertMapping links a B2C user to an upstream subject. The insert is
// scoped through b2c_users so a user id from another tenant never writes;
// re-linking the same (user, provider) pair refreshes the external subject.
func (r *externalIdpRepo) UpsertMapping(ctx context.Context, m domain.ExternalIdpMapping) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO external_idp_mappings (id, user_id, provider, external_subject, created_at)
		SELECT ?, id, ?, ?, ?
		FROM b2c_users
		WHERE id = ? AND org_id = ?
		ON CONFLICT (user_id, provider) DO UPDATE SET external_subject = excluded.external_subject`,
		m.ID, m.Provider, m.ExternalSubject, m.CreatedAt,
		m.UserID, r.orgID)
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

func (r *externalIdpRepo) GetMappingByExternalSubject(ctx context.Context, provider, externalSubject string) (domain.ExternalIdpMapping, error) {
	var m domain.ExternalIdpMapping
	err := r.db.QueryRowContext(ctx, `
		SELECT em.id, em.user_id, em.provider, em.external_subject, em.created_at
		FROM external_idp_mappings em
		JOIN b2c_users u ON u.id = em.user_id
		WHERE em.provider = ? AND em.external_subject = ? AND u.org_id = ?`,
		provider, externalSubject, r.orgID).
		Scan(&m.ID, &m.UserID, &m.Provider, &m.ExternalSubject, &m.CreatedAt)
	if err != nil {
		return domain.ExternalIdpMapping{}, mapNotFound(err)
	}
	return m, nil
}

func (r *externalIdpRepo) UpsertToken(ctx context.Context, t domain.ExternalIdpToken) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO external_idp_tokens (user_id, provider, access_token, refresh_token, expires_at, updated_at)
		SELECT id, ?, ?, ?, ?, ?
		FROM b2c_users
		WHERE id = ? AND org_id = ?
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		t.Provider, t.AccessToken, t.RefreshToken, t.ExpiresAt, t.UpdatedAt,
		t.UserID, r.orgID)
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

func (r *externalIdpRepo) GetToken(ctx context.Context, userID, provider string) (domain.ExternalIdpToken, error) {
	var t domain.ExternalIdpToken
	err := r.db.QueryRowContext(ctx, `
		SELECT et.user_id, et.provider, et.access_token, et.refresh_token, et.expires_at, et.updated_at
		FROM external_idp_tokens et
		JOIN b2c_users u ON u.id = et.user_id
		WHERE et.user_id = ? AND et.provider = ? AND u.org_id = ?`,
		userID, provider, r.orgID).
		Scan(&t.UserID, &t.Provider, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.UpdatedAt)
	if err != nil {
		return domain.ExternalIdpToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *externalIdpRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM external_idp_tokens
		WHERE expires_at <= ?
		  AND user_id IN (SELECT id FROM b2c_users WHERE org_id = ?)`,
		now, r.orgID)
	return err
}
