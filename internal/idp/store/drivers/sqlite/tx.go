package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/quartzid/quartz/internal/idp/store"
)

// txStore wraps a *sql.Tx behind the store.Tx interface. Repositories
// obtained from it run inside the transaction.
type txStore struct {
	tx   *sql.Tx
	done bool
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error {
	if t.done {
		return errors.New("sqlite: transaction already finished")
	}
	t.done = true
	return t.tx.Commit()
}

func (t *txStore) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func (t *txStore) Organizations() store.Organizations { return &organizationsRepo{db: t.tx} }
func (t *txStore) Accounts() store.Accounts           { return &accountsRepo{db: t.tx} }

func (t *txStore) Tenant(orgID string) store.TenantStore {
	return &tenantStore{db: t.tx, orgID: orgID}
}

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, errors.New("sqlite: nested transactions are not supported")
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return fn(t)
}

func (t *txStore) ApplyMigrations() error {
	return errors.New("sqlite: migrations cannot run inside a transaction")
}

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Close() error { return nil }
