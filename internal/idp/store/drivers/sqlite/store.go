package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/quartzid/quartz/internal/idp/store"

	_ "modernc.org/sqlite"
)

// dbtx is the common surface of *sql.DB and *sql.Tx the repositories run
// against, so the same repo types serve both the root store and transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Every pooled connection to :memory: would get its own database, so
	// memory DSNs are pinned to a single connection.
	if strings.Contains(dsn, "memory") {
		db.SetMaxOpenConns(1)
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Rollback is safe to call after a successful commit.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Organizations() store.Organizations { return &organizationsRepo{db: s.db} }
func (s *Store) Accounts() store.Accounts           { return &accountsRepo{db: s.db} }

// Tenant returns the repository set restricted to one organization. The org
// id is captured once here and composed into every query the returned
// repositories run; there is no setter and no default.
func (s *Store) Tenant(orgID string) store.TenantStore {
	return &tenantStore{db: s.db, orgID: orgID}
}

// tenantStore fans out the per-entity repositories, each carrying the org id.
type tenantStore struct {
	db    dbtx
	orgID string
}

func (t *tenantStore) Clients() store.Clients         { return &clientsRepo{db: t.db, orgID: t.orgID} }
func (t *tenantStore) SigningKeys() store.SigningKeys { return &signingKeysRepo{db: t.db, orgID: t.orgID} }
func (t *tenantStore) B2CUsers() store.B2CUsers       { return &b2cUsersRepo{db: t.db, orgID: t.orgID} }
func (t *tenantStore) B2BUsers() store.B2BUsers       { return &b2bUsersRepo{db: t.db, orgID: t.orgID} }
func (t *tenantStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{db: t.db, orgID: t.orgID}
}
func (t *tenantStore) AccessTokens() store.AccessTokens {
	return &accessTokensRepo{db: t.db, orgID: t.orgID}
}
func (t *tenantStore) Challenges() store.Challenges {
	return &challengesRepo{db: t.db, orgID: t.orgID}
}
func (t *tenantStore) PasskeyCredentials() store.PasskeyCredentials {
	return &passkeyCredentialsRepo{db: t.db, orgID: t.orgID}
}
func (t *tenantStore) ExternalIdp() store.ExternalIdp {
	return &externalIdpRepo{db: t.db, orgID: t.orgID}
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a sqlite unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func mapNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func mapStringNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapNullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		val := nt.Time
		return &val
	}
	return nil
}

func mapOptionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// joinFields/splitFields store string slices space-delimited, matching the
// scope columns. Values therefore must not contain spaces; redirect URIs
// and RP ids never do.
func joinFields(parts []string) string {
	return strings.Join(parts, " ")
}

func splitFields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Fields(s)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
