package command

type CreateInitialUser struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

type CreateUser struct {
	Email      string   `json:"email" validate:"required,email"`
	FirstName  string   `json:"first_name" validate:"required,max=100"`
	LastName   string   `json:"last_name" validate:"required,max=100"`
	IsAdmin    bool     `json:"is_admin"`
	IsLockable bool     `json:"is_lockable"`
	RoleIDs    []string `json:"role_ids" validate:"dive,required"`
}

type UserCreated struct {
	UserID string `json:"user_id"`
}

type UpdateUser struct {
	UserID     string   `json:"-" validate:"required"`
	Email      string   `json:"email" validate:"required,email"`
	FirstName  string   `json:"first_name" validate:"required,max=100"`
	LastName   string   `json:"last_name" validate:"required,max=100"`
	IsAdmin    bool     `json:"is_admin"`
	IsLockable bool     `json:"is_lockable"`
	RoleIDs    []string `json:"role_ids" validate:"dive,required"`
}

type DisableAccount struct {
	UserID string `json:"-" validate:"required"`
}

type EnableAccount struct {
	UserID string `json:"-" validate:"required"`
}

type LockAccount struct {
	UserID string `json:"-" validate:"required"`
}

type UnlockAccount struct {
	UserID string `json:"-" validate:"required"`
}

type CreateRole struct {
	Name      string   `json:"name" validate:"required,max=64"`
	Resources []string `json:"resources" validate:"dive,resource"`
}

type RoleCreated struct {
	RoleID string `json:"role_id"`
}

type UpdateRole struct {
	RoleID    string   `json:"-" validate:"required"`
	Name      string   `json:"name" validate:"required,max=64"`
	Resources []string `json:"resources" validate:"dive,resource"`
}

type DeleteRole struct {
	RoleID string `json:"-" validate:"required"`
}
