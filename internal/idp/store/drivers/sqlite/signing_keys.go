package sqlite

import (
	"context"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type signingKeysRepo struct {
	db    dbtx
	orgID string
}

// CreateSigningKey inserts key material for a client in this tenant. The
// INSERT..SELECT only produces a row when the client belongs to the tenant,
// so a cross-org client id fails with ErrNotFound rather than writing.
func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO signing_keys (client_id, private_key_encrypted, created_at)
		SELECT id, ?, ?
		FROM clients
		WHERE id = ? AND org_id = ?`,
		key.PrivateKeyEncrypted, key.CreatedAt, key.ClientID, r.orgID)
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

func (r *signingKeysRepo) GetSigningKeyByClientID(ctx context.Context, clientID string) (domain.SigningKey, error) {
	var key domain.SigningKey
	err := r.db.QueryRowContext(ctx, `
		SELECT sk.client_id, sk.private_key_encrypted, sk.created_at
		FROM signing_keys sk
		JOIN clients c ON c.id = sk.client_id
		WHERE sk.client_id = ? AND c.org_id = ?`,
		clientID, r.orgID).
		Scan(&key.ClientID, &key.PrivateKeyEncrypted, &key.CreatedAt)
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	return key, nil
}
