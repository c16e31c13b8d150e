package sqlite

import (
	"context"
	"database/sql"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/store"
)

type rolesRepo struct {
	db dbtx
}

const roleColumns = `id, name, resources, when_created, version`

func scanRole(row interface{ Scan(...any) error }) (domain.Role, error) {
	var (
		r           domain.Role
		resources   string
		whenCreated int64
	)
	if err := row.Scan(&r.ID, &r.Name, &resources, &whenCreated, &r.Version); err != nil {
		return domain.Role{}, err
	}
	r.Resources = splitFields(resources)
	r.WhenCreated = fromUnix(whenCreated)
	return r, nil
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = ?`, id))
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return role, nil
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE name = ?`, name))
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return role, nil
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role *domain.Role) error {
	role.Version = 1
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, resources, when_created, version) VALUES (?, ?, ?, ?, ?)`,
		role.ID, role.Name, joinFields(role.Resources), toUnix(role.WhenCreated), role.Version)
	return mapConstraint(err)
}

func (r *rolesRepo) UpdateRole(ctx context.Context, role *domain.Role) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE roles SET name = ?, resources = ?, version = version + 1 WHERE id = ? AND version = ?`,
		role.Name, joinFields(role.Resources), role.ID, role.Version)
	if err != nil {
		return mapConstraint(err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	role.Version++
	return nil
}

func (r *rolesRepo) DeleteRole(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
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

// expectOneRow turns a guarded update that matched nothing into ErrConflict.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}
