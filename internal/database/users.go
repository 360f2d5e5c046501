package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkpass/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (name, email, is_admin, balance, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		user.Name, user.Email, user.IsAdmin, user.Balance, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx,
		`SELECT id, name, email, is_admin, balance, created_at, updated_at FROM users WHERE id = ?`, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.IsAdmin, &user.Balance, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
