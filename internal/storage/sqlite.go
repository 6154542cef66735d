package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/animeswipe/animeswipe/internal/crypto"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Ensure SQLiteStorage implements required interfaces
var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage persists users and pending logins in a single SQLite file.
// Provider tokens are encrypted before they are written.
type SQLiteStorage struct {
	db        *sql.DB
	encryptor crypto.Encryptor
	now       func() time.Time
}

// NewSQLiteStorage opens (creating if needed) and migrates the database at path.
func NewSQLiteStorage(ctx context.Context, path string, encryptor crypto.Encryptor) (*SQLiteStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrationFiles, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.LogInfoWithFields("storage", "SQLite storage ready", map[string]any{
		"path": path,
	})

	return &SQLiteStorage{db: db, encryptor: encryptor, now: time.Now}, nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) SaveLoginRequest(ctx context.Context, req *LoginRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_requests (state, code_verifier, created_at) VALUES (?, ?, ?)`,
		req.State, req.CodeVerifier, req.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert login request: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) TakeLoginRequest(ctx context.Context, state string) (*LoginRequest, error) {
	var verifier string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM login_requests WHERE state = ? RETURNING code_verifier, created_at`,
		state,
	).Scan(&verifier, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLoginRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take login request: %w", err)
	}
	return &LoginRequest{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    time.UnixMilli(createdAt),
	}, nil
}

func (s *SQLiteStorage) CleanupExpiredLoginRequests(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM login_requests WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired login requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStorage) UpsertMALUser(ctx context.Context, profile MALProfile) (*User, bool, error) {
	now := s.now()
	newID := uuid.NewString()

	user := &User{
		MALID:     profile.ID,
		Username:  profile.Name,
		Avatar:    profile.Picture,
		UpdatedAt: time.UnixMilli(now.UnixMilli()),
	}
	var onboarded int
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, mal_id, username, avatar, onboarded, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (mal_id) DO UPDATE SET
		     username = excluded.username,
		     avatar = excluded.avatar,
		     updated_at = excluded.updated_at
		 RETURNING id, onboarded, created_at`,
		newID, profile.ID, profile.Name, profile.Picture, now.UnixMilli(), now.UnixMilli(),
	).Scan(&user.ID, &onboarded, &createdAt)
	if err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	user.Onboarded = onboarded != 0
	user.CreatedAt = time.UnixMilli(createdAt)

	return user, user.ID == newID, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	var onboarded int
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mal_id, username, avatar, onboarded, created_at, updated_at FROM users WHERE id = ?`,
		id,
	).Scan(&user.ID, &user.MALID, &user.Username, &user.Avatar, &onboarded, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.Onboarded = onboarded != 0
	user.CreatedAt = time.UnixMilli(createdAt)
	user.UpdatedAt = time.UnixMilli(updatedAt)
	return &user, nil
}

func (s *SQLiteStorage) CompleteOnboarding(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET onboarded = 1, updated_at = ? WHERE id = ?`,
		s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLiteStorage) SetProviderToken(ctx context.Context, userID string, token *ProviderToken) error {
	access, err := s.encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	var refresh string
	if token.RefreshToken != "" {
		if refresh, err = s.encryptor.Encrypt(token.RefreshToken); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	var expiresAt int64
	if !token.ExpiresAt.IsZero() {
		expiresAt = token.ExpiresAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO provider_tokens (user_id, access_token, refresh_token, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     access_token = excluded.access_token,
		     refresh_token = excluded.refresh_token,
		     expires_at = excluded.expires_at,
		     updated_at = excluded.updated_at`,
		userID, access, refresh, expiresAt, s.now().UnixMilli(),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "foreign key") {
			return ErrUserNotFound
		}
		return fmt.Errorf("store provider token: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetProviderToken(ctx context.Context, userID string) (*ProviderToken, error) {
	var access, refresh string
	var expiresAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, updated_at FROM provider_tokens WHERE user_id = ?`,
		userID,
	).Scan(&access, &refresh, &expiresAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProviderTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider token: %w", err)
	}

	token := &ProviderToken{UpdatedAt: time.UnixMilli(updatedAt)}
	if token.AccessToken, err = s.encryptor.Decrypt(access); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if refresh != "" {
		if token.RefreshToken, err = s.encryptor.Decrypt(refresh); err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}
	if expiresAt != 0 {
		token.ExpiresAt = time.UnixMilli(expiresAt)
	}
	return token, nil
}
