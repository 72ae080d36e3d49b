package sqlite

import (
	"context"
	"database/sql"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
)

type organizationsRepo struct {
	db dbtx
}

const organizationColumns = `id, name, created_at, updated_at`

func (r *organizationsRepo) scanOrganization(row *sql.Row) (domain.Organization, error) {
	var org domain.Organization
	err := row.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return domain.Organization{}, mapNotFound(err)
	}
	return org, nil
}

func (r *organizationsRepo) GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE id = ?`, id)
	return r.scanOrganization(row)
}

func (r *organizationsRepo) GetOrganizationByName(ctx context.Context, name string) (domain.Organization, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE name = ?`, name)
	return r.scanOrganization(row)
}

func (r *organizationsRepo) CreateOrganization(ctx context.Context, org domain.Organization) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		org.ID, org.Name, org.CreatedAt, org.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *organizationsRepo) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (r *organizationsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
