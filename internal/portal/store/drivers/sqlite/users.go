package sqlite

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/initiumportal/stance/internal/portal/domain"
	"github.com/initiumportal/stance/internal/portal/store"
)

// historyLoadLimit bounds how many recent history entries are loaded with a
// user. Older entries stay in the table until housekeeping removes them.
const historyLoadLimit = 50

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, password_hash, first_name, last_name,
	is_lockable, is_admin, is_disabled, is_verified,
	when_created, when_last_authenticated, when_locked, when_disabled, when_verified,
	security_stamp, version`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u           domain.User
		whenCreated int64

		whenLastAuthenticated, whenLocked sql.NullInt64
		whenDisabled, whenVerified        sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Profile.FirstName, &u.Profile.LastName,
		&u.IsLockable, &u.IsAdmin, &u.IsDisabled, &u.IsVerified,
		&whenCreated, &whenLastAuthenticated, &whenLocked, &whenDisabled, &whenVerified,
		&u.SecurityStamp, &u.Version,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.WhenCreated = fromUnix(whenCreated)
	u.WhenLastAuthenticated = mapNullTimePtr(whenLastAuthenticated)
	u.WhenLocked = mapNullTimePtr(whenLocked)
	u.WhenDisabled = mapNullTimePtr(whenDisabled)
	u.WhenVerified = mapNullTimePtr(whenVerified)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.loadUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.loadUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, domain.NormalizeEmail(email))
}

func (r *usersRepo) GetUserBySecurityToken(ctx context.Context, tokenID string, purpose domain.TokenPurpose, now time.Time) (*domain.User, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id FROM security_token_mappings
		WHERE id = ? AND purpose = ? AND when_used IS NULL AND when_expires >= ?`,
		tokenID, string(purpose), toUnix(now)).Scan(&userID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return r.GetUserByID(ctx, userID)
}

// loadUser reads the user row and then each child collection. Every query
// finishes before the next starts since the pool holds one connection.
func (r *usersRepo) loadUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapNotFound(err)
	}

	if u.RoleIDs, err = r.loadRoleIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	if u.AuthenticatorApps, err = r.loadApps(ctx, u.ID); err != nil {
		return nil, err
	}
	if u.AuthenticatorDevices, err = r.loadDevices(ctx, u.ID); err != nil {
		return nil, err
	}
	if u.SecurityTokenMappings, err = r.loadTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	if u.AuthenticationHistories, err = r.loadHistories(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *usersRepo) loadRoleIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role_id FROM user_roles WHERE user_id = ? ORDER BY role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *usersRepo) loadApps(ctx context.Context, userID string) ([]domain.AuthenticatorApp, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, secret, when_enrolled, when_revoked FROM authenticator_apps
		WHERE user_id = ? ORDER BY when_enrolled, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.AuthenticatorApp
	for rows.Next() {
		var (
			a            domain.AuthenticatorApp
			whenEnrolled int64
			whenRevoked  sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Key, &whenEnrolled, &whenRevoked); err != nil {
			return nil, err
		}
		a.WhenEnrolled = fromUnix(whenEnrolled)
		a.WhenRevoked = mapNullTimePtr(whenRevoked)
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (r *usersRepo) loadDevices(ctx context.Context, userID string) ([]domain.AuthenticatorDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, credential_id, public_key, aaguid, counter, name, credential_type,
			transports, backup_eligible, backup_state, when_enrolled, when_last_used, is_revoked
		FROM authenticator_devices
		WHERE user_id = ? ORDER BY when_enrolled, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.AuthenticatorDevice
	for rows.Next() {
		var (
			d            domain.AuthenticatorDevice
			counter      int64
			transports   string
			whenEnrolled int64
			whenLastUsed sql.NullInt64
		)
		err := rows.Scan(&d.ID, &d.CredentialID, &d.PublicKey, &d.AAGUID, &counter, &d.Name,
			&d.CredentialType, &transports, &d.BackupEligible, &d.BackupState,
			&whenEnrolled, &whenLastUsed, &d.IsRevoked)
		if err != nil {
			return nil, err
		}
		d.Counter = uint32(counter)
		d.Transports = splitFields(transports)
		d.WhenEnrolled = fromUnix(whenEnrolled)
		d.WhenLastUsed = mapNullTimePtr(whenLastUsed)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// loadTokens returns only unused tokens; spent ones never change again.
func (r *usersRepo) loadTokens(ctx context.Context, userID string) ([]domain.SecurityTokenMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, purpose, when_created, when_expires FROM security_token_mappings
		WHERE user_id = ? AND when_used IS NULL ORDER BY when_created, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.SecurityTokenMapping
	for rows.Next() {
		var (
			m                        domain.SecurityTokenMapping
			purpose                  string
			whenCreated, whenExpires int64
		)
		if err := rows.Scan(&m.ID, &purpose, &whenCreated, &whenExpires); err != nil {
			return nil, err
		}
		m.Purpose = domain.TokenPurpose(purpose)
		m.WhenCreated = fromUnix(whenCreated)
		m.WhenExpires = fromUnix(whenExpires)
		tokens = append(tokens, m)
	}
	return tokens, rows.Err()
}

// loadHistories returns the most recent entries, oldest first.
func (r *usersRepo) loadHistories(ctx context.Context, userID string) ([]domain.AuthenticationHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, occurred_at FROM authentication_histories
		WHERE user_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`, userID, historyLoadLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var histories []domain.AuthenticationHistory
	for rows.Next() {
		var (
			h          domain.AuthenticationHistory
			typ        string
			occurredAt int64
		)
		if err := rows.Scan(&h.ID, &typ, &occurredAt); err != nil {
			return nil, err
		}
		h.Type = domain.AuthenticationHistoryType(typ)
		h.When = fromUnix(occurredAt)
		histories = append(histories, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(histories)
	return histories, nil
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		u.ID, u.Email, u.PasswordHash, u.Profile.FirstName, u.Profile.LastName,
		u.IsLockable, u.IsAdmin, u.IsDisabled, u.IsVerified,
		toUnix(u.WhenCreated), mapOptionalTime(u.WhenLastAuthenticated), mapOptionalTime(u.WhenLocked),
		mapOptionalTime(u.WhenDisabled), mapOptionalTime(u.WhenVerified),
		u.SecurityStamp)
	if err != nil {
		return mapConstraint(err)
	}

	if err := r.saveChildren(ctx, u); err != nil {
		return err
	}
	u.Version = 1
	return nil
}

func (r *usersRepo) SaveUser(ctx context.Context, u *domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			email = ?, password_hash = ?, first_name = ?, last_name = ?,
			is_lockable = ?, is_admin = ?, is_disabled = ?, is_verified = ?,
			when_last_authenticated = ?, when_locked = ?, when_disabled = ?, when_verified = ?,
			security_stamp = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		u.Email, u.PasswordHash, u.Profile.FirstName, u.Profile.LastName,
		u.IsLockable, u.IsAdmin, u.IsDisabled, u.IsVerified,
		mapOptionalTime(u.WhenLastAuthenticated), mapOptionalTime(u.WhenLocked),
		mapOptionalTime(u.WhenDisabled), mapOptionalTime(u.WhenVerified),
		u.SecurityStamp, u.ID, u.Version)
	if err != nil {
		return mapConstraint(err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	if err := r.saveChildren(ctx, u); err != nil {
		return err
	}
	u.Version++
	return nil
}

// saveChildren upserts each child collection in slice order. Revocations
// come before the enrollment that replaces them, which keeps the partial
// unique indexes satisfied.
func (r *usersRepo) saveChildren(ctx context.Context, u *domain.User) error {
	if err := r.saveRoleIDs(ctx, u.ID, u.RoleIDs); err != nil {
		return err
	}

	for _, a := range u.AuthenticatorApps {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO authenticator_apps (id, user_id, secret, when_enrolled, when_revoked)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET when_revoked = excluded.when_revoked`,
			a.ID, u.ID, a.Key, toUnix(a.WhenEnrolled), mapOptionalTime(a.WhenRevoked))
		if err != nil {
			return mapConstraint(err)
		}
	}

	for _, d := range u.AuthenticatorDevices {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO authenticator_devices (id, user_id, credential_id, public_key, aaguid, counter,
				name, credential_type, transports, backup_eligible, backup_state,
				when_enrolled, when_last_used, is_revoked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				counter = excluded.counter,
				name = excluded.name,
				backup_state = excluded.backup_state,
				when_last_used = excluded.when_last_used,
				is_revoked = excluded.is_revoked`,
			d.ID, u.ID, d.CredentialID, d.PublicKey, d.AAGUID, int64(d.Counter),
			d.Name, d.CredentialType, joinFields(d.Transports), d.BackupEligible, d.BackupState,
			toUnix(d.WhenEnrolled), mapOptionalTime(d.WhenLastUsed), d.IsRevoked)
		if err != nil {
			return mapConstraint(err)
		}
	}

	for _, m := range u.SecurityTokenMappings {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO security_token_mappings (id, user_id, purpose, when_created, when_expires, when_used)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET when_used = excluded.when_used`,
			m.ID, u.ID, string(m.Purpose), toUnix(m.WhenCreated), toUnix(m.WhenExpires), mapOptionalTime(m.WhenUsed))
		if err != nil {
			return mapConstraint(err)
		}
	}

	for _, h := range u.AuthenticationHistories {
		_, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO authentication_histories (id, user_id, type, occurred_at)
			VALUES (?, ?, ?, ?)`,
			h.ID, u.ID, string(h.Type), toUnix(h.When))
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) saveRoleIDs(ctx context.Context, userID string, roleIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, roleID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) DeleteSpentSecurityTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM security_token_mappings
		WHERE (when_used IS NOT NULL AND when_used < ?) OR when_expires < ?`,
		toUnix(cutoff), toUnix(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *usersRepo) DeleteAuthenticationHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM authentication_histories WHERE occurred_at < ?`, toUnix(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ store.Users = (*usersRepo)(nil)
var _ store.Roles = (*rolesRepo)(nil)
