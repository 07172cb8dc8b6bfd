package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// UserRepo manages rows in the users table.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo binds a UserRepo to a database handle.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, netid, email, display_name, password_hash, role, is_active, created_at, updated_at`

// CreateLocal inserts a password account.  Duplicate emails map to
// ErrEmailExists via the unique key.
func (r *UserRepo) CreateLocal(ctx context.Context, email, displayName, passwordHash, role string) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, display_name, password_hash, role) VALUES (?, ?, ?, ?)`,
		email, displayName, passwordHash, role)
	if err != nil {
		var my *mysql.MySQLError
		if errors.As(err, &my) && my.Number == 1062 {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// UpsertByNetID returns the account for a CAS netid, creating it on first
// login.  The netid is stored lowercase; new accounts start as renters.
func (r *UserRepo) UpsertByNetID(ctx context.Context, netid string) (*model.User, error) {
	u, err := r.getBy(ctx, `netid = ?`, netid)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (netid, display_name, role) VALUES (?, ?, ?)`,
		netid, netid, model.RoleRenter)
	if err != nil {
		// Concurrent first logins race on the unique key; the loser
		// re-reads the winner's row.
		var my *mysql.MySQLError
		if errors.As(err, &my) && my.Number == 1062 {
			return r.getBy(ctx, `netid = ?`, netid)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail looks up a local account.  Returns sql.ErrNoRows when absent.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, `email = ?`, email)
}

// GetByID fetches a user by primary key.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getBy(ctx, `id = ?`, id)
}

// SetRole updates a user's role; used when a renter starts lending and by
// the admin console.
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActive toggles whether the account may authenticate.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	return err
}

// ListAll returns every account, for the admin console.
func (r *UserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepo) getBy(ctx context.Context, where string, arg any) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	return scanUser(row)
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var netid, email, hash sql.NullString
	err := row.Scan(&u.ID, &netid, &email, &u.DisplayName, &hash, &u.Role, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if netid.Valid {
		u.NetID = &netid.String
	}
	if email.Valid {
		u.Email = &email.String
	}
	if hash.Valid {
		u.PasswordHash = &hash.String
	}
	return &u, nil
}
