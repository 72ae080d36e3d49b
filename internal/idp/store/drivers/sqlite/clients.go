package sqlite

import (
	"context"
	"database/sql"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type clientsRepo struct {
	db    dbtx
	orgID string
}

const clientColumns = `id, org_id, name, secret_hash, redirect_uris, allowed_rp_ids, scopes, created_at, updated_at`

func scanClient(scan func(dest ...any) error) (domain.Client, error) {
	var (
		c            domain.Client
		secretHash   sql.NullString
		redirectURIs string
		allowedRPIDs string
		scopes       string
	)
	err := scan(&c.ID, &c.OrgID, &c.Name, &secretHash,
		&redirectURIs, &allowedRPIDs, &scopes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	c.SecretHash = mapNullString(secretHash)
	c.RedirectURIs = splitFields(redirectURIs)
	c.AllowedRPIDs = splitFields(allowedRPIDs)
	c.Scopes = splitFields(scopes)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE id = ? AND org_id = ?`, id, r.orgID)
	return scanClient(row.Scan)
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE org_id = ?
		ORDER BY created_at`, r.orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows.Scan)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, org_id, name, secret_hash, redirect_uris, allowed_rp_ids, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, r.orgID, c.Name, mapStringNull(c.SecretHash),
		joinFields(c.RedirectURIs), joinFields(c.AllowedRPIDs), joinFields(c.Scopes),
		c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *clientsRepo) DeleteClient(ctx context.Context, clientID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM clients
		WHERE id = ? AND org_id = ?`, clientID, r.orgID)
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
