package store

import (
	"context"
	"errors"
	"time"

	"github.com/initiumportal/stance/internal/portal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports that an aggregate changed since it was loaded.
	ErrConflict = errors.New("store: version conflict")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories. A Tx embeds the same repositories, so code written
// against Store works unchanged inside a unit of work.
type Store interface {
	Users() Users
	Roles() Roles

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction: it commits when fn returns nil
	// and rolls back otherwise. All writes of one command go through here.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users persists the User aggregate as a whole.
type Users interface {
	// GetUserByID loads the aggregate with its children.
	GetUserByID(ctx context.Context, id string) (*domain.User, error)

	// GetUserByEmail loads the aggregate by its lower-cased email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetUserBySecurityToken loads the owner of a token that is unused and
	// unexpired at now with the given purpose.
	GetUserBySecurityToken(ctx context.Context, tokenID string, purpose domain.TokenPurpose, now time.Time) (*domain.User, error)

	// ListUsers returns every user without child collections, ordered by email.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// CreateUser inserts a new aggregate. A taken email is ErrAlreadyExists.
	CreateUser(ctx context.Context, u *domain.User) error

	// SaveUser writes the aggregate if its version is unchanged since load,
	// otherwise ErrConflict. On success u.Version is advanced.
	SaveUser(ctx context.Context, u *domain.User) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)

	// DeleteSpentSecurityTokens removes tokens used or expired before cutoff.
	DeleteSpentSecurityTokens(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteAuthenticationHistoryBefore removes history entries older than cutoff.
	DeleteAuthenticationHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Roles interface {
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListRoles returns all roles ordered by name.
	ListRoles(ctx context.Context) ([]domain.Role, error)

	// CreateRole inserts a role. A taken name is ErrAlreadyExists.
	CreateRole(ctx context.Context, r *domain.Role) error

	// UpdateRole writes name and resources with the same version check as SaveUser.
	UpdateRole(ctx context.Context, r *domain.Role) error

	// DeleteRole removes a role and its user assignments.
	DeleteRole(ctx context.Context, id string) error
}
