package db

import (
	"context"
	"fmt"
	"time"

	"speech-to-pdf/internal/models"
)

const userColumns = "id, email, username, hashed_password, is_active, is_admin, credits, created_at, created_by"

// CreateUser inserts u and returns the stored row.
func CreateUser(ctx context.Context, q Queryer, u models.User) (models.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := q.Rebind(`
		INSERT INTO users (email, username, hashed_password, is_active, is_admin, credits, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns)
	created := models.User{}
	err := q.GetContext(ctx, &created, query,
		u.Email, u.Username, u.HashedPassword, u.IsActive, u.IsAdmin, u.Credits, u.CreatedAt, u.CreatedBy)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to insert user %q: %w", u.Username, err)
	}
	return created, nil
}

func GetUserByID(ctx context.Context, q Queryer, id int64) (models.User, error) {
	user := models.User{}
	err := q.GetContext(ctx, &user, q.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	return user, notFound(err)
}

func GetUserByUsername(ctx context.Context, q Queryer, username string) (models.User, error) {
	user := models.User{}
	err := q.GetContext(ctx, &user, q.Rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username)
	return user, notFound(err)
}

func GetUserByEmail(ctx context.Context, q Queryer, email string) (models.User, error) {
	user := models.User{}
	err := q.GetContext(ctx, &user, q.Rebind("SELECT "+userColumns+" FROM users WHERE email = ?"), email)
	return user, notFound(err)
}

// ListUsers returns one page of accounts ordered by id and the total count.
func ListUsers(ctx context.Context, q Queryer, offset, limit int) ([]models.User, int, error) {
	var total int
	if err := q.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	users := []models.User{}
	query := q.Rebind("SELECT " + userColumns + " FROM users ORDER BY id LIMIT ? OFFSET ?")
	if err := q.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// EmailTaken reports whether another account than excludeID uses email.
func EmailTaken(ctx context.Context, q Queryer, email string, excludeID int64) (bool, error) {
	var n int
	err := q.GetContext(ctx, &n, q.Rebind("SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?"), email, excludeID)
	return n > 0, err
}

// UsernameTaken reports whether another account than excludeID uses username.
func UsernameTaken(ctx context.Context, q Queryer, username string, excludeID int64) (bool, error) {
	var n int
	err := q.GetContext(ctx, &n, q.Rebind("SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?"), username, excludeID)
	return n > 0, err
}

// CountActiveAdmins counts active admin accounts other than excludeID.
// Pass 0 to count all of them.
func CountActiveAdmins(ctx context.Context, q Queryer, excludeID int64) (int, error) {
	var n int
	query := q.Rebind("SELECT COUNT(*) FROM users WHERE is_admin = ? AND is_active = ? AND id <> ?")
	err := q.GetContext(ctx, &n, query, true, true, excludeID)
	return n, err
}

// UpdateUser writes every mutable column of u.
func UpdateUser(ctx context.Context, q Queryer, u models.User) error {
	query := q.Rebind(`
		UPDATE users
		SET email = ?, username = ?, hashed_password = ?, is_active = ?, is_admin = ?, credits = ?
		WHERE id = ?`)
	res, err := q.ExecContext(ctx, query, u.Email, u.Username, u.HashedPassword, u.IsActive, u.IsAdmin, u.Credits, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", u.ID, err)
	}
	return expectRow(res)
}

func UpdatePassword(ctx context.Context, q Queryer, id int64, hash string) error {
	res, err := q.ExecContext(ctx, q.Rebind("UPDATE users SET hashed_password = ? WHERE id = ?"), hash, id)
	if err != nil {
		return fmt.Errorf("failed to update password for user %d: %w", id, err)
	}
	return expectRow(res)
}

func DeleteUser(ctx context.Context, q Queryer, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	return expectRow(res)
}

// DebitCredits subtracts minutes from a non-admin balance, clamping at zero,
// and returns the new balance. Admin rows are left untouched and yield
// ErrNotFound.
func DebitCredits(ctx context.Context, q Queryer, id int64, minutes float64) (float64, error) {
	query := q.Rebind(`
		UPDATE users
		SET credits = CASE WHEN credits - ? < 0 THEN 0 ELSE credits - ? END
		WHERE id = ? AND is_admin = ?
		RETURNING credits`)
	var balance float64
	err := q.GetContext(ctx, &balance, query, minutes, minutes, id, false)
	if err != nil {
		return 0, notFound(err)
	}
	return balance, nil
}
