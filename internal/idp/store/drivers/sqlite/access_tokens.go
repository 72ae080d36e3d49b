package sqlite

import (
	"context"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type accessTokensRepo struct {
	db    dbtx
	orgID string
}

func (r *accessTokensRepo) CreateAccessToken(ctx context.Context, t domain.AccessToken) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO access_tokens (id, token_hash, client_id, subject_type, subject_id, scopes, issued_at, expires_at)
		SELECT ?, ?, id, ?, ?, ?, ?, ?
		FROM clients
		WHERE id = ? AND org_id = ?`,
		t.ID, t.TokenHash, t.Subject.Type.String(), t.Subject.ID,
		joinFields(t.Scopes), t.IssuedAt, t.ExpiresAt,
		t.ClientID, r.orgID)
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

func (r *accessTokensRepo) GetAccessTokenByHash(ctx context.Context, hash string) (domain.AccessToken, error) {
	var (
		t           domain.AccessToken
		subjectType string
		scopes      string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT at.id, at.token_hash, at.client_id, at.subject_type, at.subject_id, at.scopes, at.issued_at, at.expires_at
		FROM access_tokens at
		JOIN clients c ON c.id = at.client_id
		WHERE at.token_hash = ? AND c.org_id = ?`,
		hash, r.orgID).
		Scan(&t.ID, &t.TokenHash, &t.ClientID, &subjectType, &t.Subject.ID,
			&scopes, &t.IssuedAt, &t.ExpiresAt)
	if err != nil {
		return domain.AccessToken{}, mapNotFound(err)
	}
	t.Subject.Type = domain.SubjectType(subjectType)
	t.Scopes = splitFields(scopes)
	return t, nil
}

func (r *accessTokensRepo) DeleteExpiredAccessTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM access_tokens
		WHERE expires_at <= ?
		  AND client_id IN (SELECT id FROM clients WHERE org_id = ?)`,
		now, r.orgID)
	return err
}
