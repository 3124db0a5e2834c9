package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	TeamID       *string
	Restricted   bool
	CreatedAt    time.Time
}

type CreateUserParams struct {
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	TeamID       *string
}

const userColumns = `id, email, display_name, password_hash, role, team_id, restricted, created_at`

func scanUser(row rowScanner) (User, error) {
	var (
		u      User
		teamID sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &teamID, &u.Restricted, &u.CreatedAt); err != nil {
		return User{}, err
	}
	if teamID.Valid {
		id := teamID.String
		u.TeamID = &id
	}
	return u, nil
}

func (db *DB) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	u := User{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(params.Email),
		DisplayName:  params.DisplayName,
		PasswordHash: params.PasswordHash,
		Role:         strings.ToLower(strings.TrimSpace(params.Role)),
		TeamID:       params.TeamID,
		CreatedAt:    time.Now().UTC(),
	}
	if u.Role == "" {
		u.Role = "member"
	}
	_, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		u.ID, u.Email, u.DisplayName, u.PasswordHash, u.Role, nullString(u.TeamID), u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(db.conn(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// TeamManagerEmails returns the addresses of every manager attached to the team.
func (db *DB) TeamManagerEmails(ctx context.Context, teamID string) ([]string, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT email FROM users
		WHERE team_id = ? AND lower(role) = 'manager'
		ORDER BY email`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list team managers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan manager email: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

// PlayerName returns the display name of a player, or the id if it is unknown.
func (db *DB) PlayerName(ctx context.Context, playerID string) string {
	var name string
	if err := db.conn(ctx).QueryRowContext(ctx, `SELECT name FROM players WHERE id = ?`, playerID).Scan(&name); err != nil {
		return playerID
	}
	return name
}
