package sqlite

import (
	"context"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
)

type challengesRepo struct {
	db    dbtx
	orgID string
}

// PutChallenge stores a ceremony challenge, replacing any prior record for
// the same session id. The tenant check happens up front against the owning
// client; INSERT OR REPLACE then keeps at most one live challenge per
// session.
func (r *challengesRepo) PutChallenge(ctx context.Context, ch domain.WebAuthnChallenge) error {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM clients WHERE id = ? AND org_id = ?`,
		ch.ClientID, r.orgID).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO webauthn_challenges (session_id, ceremony, subject_type, subject_id, rp_id, client_id, session_data, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.SessionID, string(ch.Ceremony), ch.SubjectType.String(), ch.SubjectID,
		ch.RPID, ch.ClientID, ch.SessionData, ch.ExpiresAt, ch.CreatedAt)
	return err
}

// ConsumeChallenge atomically fetches and deletes the challenge. DELETE with
// RETURNING makes the read and the removal one statement, so a challenge can
// only ever be consumed once regardless of concurrent finishes.
func (r *challengesRepo) ConsumeChallenge(ctx context.Context, sessionID string) (domain.WebAuthnChallenge, error) {
	var (
		ch          domain.WebAuthnChallenge
		ceremony    string
		subjectType string
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM webauthn_challenges
		WHERE session_id = ?
		  AND client_id IN (SELECT id FROM clients WHERE org_id = ?)
		RETURNING session_id, ceremony, subject_type, subject_id, rp_id, client_id, session_data, expires_at, created_at`,
		sessionID, r.orgID).
		Scan(&ch.SessionID, &ceremony, &subjectType, &ch.SubjectID,
			&ch.RPID, &ch.ClientID, &ch.SessionData, &ch.ExpiresAt, &ch.CreatedAt)
	if err != nil {
		return domain.WebAuthnChallenge{}, mapNotFound(err)
	}
	ch.Ceremony = domain.CeremonyType(ceremony)
	if subjectType != "" {
		ch.SubjectType = domain.SubjectType(subjectType)
	}
	return ch, nil
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM webauthn_challenges
		WHERE expires_at <= ?
		  AND client_id IN (SELECT id FROM clients WHERE org_id = ?)`,
		now, r.orgID)
	return err
}
