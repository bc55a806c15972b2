package account

import (
	"context"
	"database/sql"

	"qrattend/internal/model"
	"qrattend/internal/store"
)

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, email, password_hash, role, device_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u      model.User
		role   string
		device sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &device, &u.CreatedAt); err != nil {
		return model.User{}, store.Classify(err)
	}
	u.Role = model.Role(role)
	u.DeviceID = device.String
	return u, nil
}

// CreateUser inserts a user; a taken email yields store.ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u model.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, device_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $7)
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.DeviceID, u.CreatedAt)
	return store.Classify(err)
}

// UserByEmail looks a user up case-insensitively.
func (r *Repository) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// UserByID returns a single user.
func (r *Repository) UserByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// BindDevice binds deviceID when the slot is empty and returns whatever is
// bound afterwards.
func (r *Repository) BindDevice(ctx context.Context, userID, deviceID string) (string, error) {
	var bound string
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET device_id = COALESCE(device_id, $2),
			updated_at = CASE WHEN device_id IS NULL THEN NOW() ELSE updated_at END
		WHERE id = $1
		RETURNING device_id
	`, userID, deviceID).Scan(&bound)
	return bound, store.Classify(err)
}

// ClearDevice unbinds the user's device.
func (r *Repository) ClearDevice(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET device_id = NULL, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return store.Classify(err)
	}
	return store.RequireRows(res)
}

// UpdatePassword stores a new bcrypt hash.
func (r *Repository) UpdatePassword(ctx context.Context, userID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
	if err != nil {
		return store.Classify(err)
	}
	return store.RequireRows(res)
}
