package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/animeswipe/animeswipe/internal/crypto"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStorage implements Storage using Google Cloud Firestore.
//
// Users live in "<collection>_users" keyed by user ID. A second collection,
// "<collection>_mal_ids", maps a MAL id to the user ID so the upsert can run
// in a single transaction.
type FirestoreStorage struct {
	client    *firestore.Client
	encryptor crypto.Encryptor

	loginCollection string
	userCollection  string
	malCollection   string
	tokenCollection string
}

// Ensure FirestoreStorage implements Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// LoginRequestDoc represents a pending login document in Firestore
type LoginRequestDoc struct {
	CodeVerifier string    `firestore:"code_verifier"`
	CreatedAt    time.Time `firestore:"created_at"`
}

// UserDoc represents a user document in Firestore
type UserDoc struct {
	ID        string    `firestore:"id"`
	MALID     int64     `firestore:"mal_id"`
	Username  string    `firestore:"username"`
	Avatar    string    `firestore:"avatar"`
	Onboarded bool      `firestore:"onboarded"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (d *UserDoc) toUser() *User {
	return &User{
		ID:        d.ID,
		MALID:     d.MALID,
		Username:  d.Username,
		Avatar:    d.Avatar,
		Onboarded: d.Onboarded,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type malIDDoc struct {
	UserID string `firestore:"user_id"`
}

// ProviderTokenDoc holds encrypted MAL tokens
type ProviderTokenDoc struct {
	AccessToken  string    `firestore:"access_token"`
	RefreshToken string    `firestore:"refresh_token,omitempty"`
	ExpiresAt    time.Time `firestore:"expires_at,omitempty"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore storage ready", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:          client,
		encryptor:       encryptor,
		loginCollection: collection + "_login_requests",
		userCollection:  collection + "_users",
		malCollection:   collection + "_mal_ids",
		tokenCollection: collection + "_provider_tokens",
	}, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}

func (s *FirestoreStorage) SaveLoginRequest(ctx context.Context, req *LoginRequest) error {
	_, err := s.client.Collection(s.loginCollection).Doc(req.State).Create(ctx, LoginRequestDoc{
		CodeVerifier: req.CodeVerifier,
		CreatedAt:    req.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to store login request: %w", err)
	}
	return nil
}

// TakeLoginRequest reads and deletes the request in one transaction so a
// replayed callback cannot consume it twice.
func (s *FirestoreStorage) TakeLoginRequest(ctx context.Context, state string) (*LoginRequest, error) {
	ref := s.client.Collection(s.loginCollection).Doc(state)

	var req *LoginRequest
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrLoginRequestNotFound
			}
			return fmt.Errorf("failed to get login request: %w", err)
		}

		var reqDoc LoginRequestDoc
		if err := doc.DataTo(&reqDoc); err != nil {
			return fmt.Errorf("failed to unmarshal login request: %w", err)
		}
		req = &LoginRequest{State: state, CodeVerifier: reqDoc.CodeVerifier, CreatedAt: reqDoc.CreatedAt}
		return tx.Delete(ref)
	})
	if err != nil {
		if errors.Is(err, ErrLoginRequestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to take login request: %w", err)
	}
	return req, nil
}

func (s *FirestoreStorage) CleanupExpiredLoginRequests(ctx context.Context, cutoff time.Time) (int, error) {
	iter := s.client.Collection(s.loginCollection).
		Where("created_at", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired login requests: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}
	return count, nil
}

func (s *FirestoreStorage) UpsertMALUser(ctx context.Context, profile MALProfile) (*User, bool, error) {
	malRef := s.client.Collection(s.malCollection).Doc(strconv.FormatInt(profile.ID, 10))

	var user *User
	var created bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		now := time.Now()

		malDoc, err := tx.Get(malRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to look up MAL id: %w", err)
		}

		if err == nil {
			var mapping malIDDoc
			if err := malDoc.DataTo(&mapping); err != nil {
				return fmt.Errorf("failed to unmarshal MAL id mapping: %w", err)
			}
			userRef := s.client.Collection(s.userCollection).Doc(mapping.UserID)
			doc, err := tx.Get(userRef)
			if err != nil {
				return fmt.Errorf("failed to get user %s: %w", mapping.UserID, err)
			}
			var userDoc UserDoc
			if err := doc.DataTo(&userDoc); err != nil {
				return fmt.Errorf("failed to unmarshal user: %w", err)
			}
			userDoc.Username = profile.Name
			userDoc.Avatar = profile.Picture
			userDoc.UpdatedAt = now
			user = userDoc.toUser()
			return tx.Update(userRef, []firestore.Update{
				{Path: "username", Value: profile.Name},
				{Path: "avatar", Value: profile.Picture},
				{Path: "updated_at", Value: now},
			})
		}

		userDoc := UserDoc{
			ID:        uuid.NewString(),
			MALID:     profile.ID,
			Username:  profile.Name,
			Avatar:    profile.Picture,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(s.client.Collection(s.userCollection).Doc(userDoc.ID), userDoc); err != nil {
			return err
		}
		if err := tx.Create(malRef, malIDDoc{UserID: userDoc.ID}); err != nil {
			return err
		}
		user = userDoc.toUser()
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, created, nil
}

func (s *FirestoreStorage) GetUser(ctx context.Context, id string) (*User, error) {
	doc, err := s.client.Collection(s.userCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user from Firestore: %w", err)
	}

	var userDoc UserDoc
	if err := doc.DataTo(&userDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return userDoc.toUser(), nil
}

func (s *FirestoreStorage) CompleteOnboarding(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.userCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "onboarded", Value: true},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to complete onboarding: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) SetProviderToken(ctx context.Context, userID string, token *ProviderToken) error {
	encryptedAccess, err := s.encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	doc := ProviderTokenDoc{
		AccessToken: encryptedAccess,
		ExpiresAt:   token.ExpiresAt,
		UpdatedAt:   time.Now(),
	}
	if token.RefreshToken != "" {
		if doc.RefreshToken, err = s.encryptor.Encrypt(token.RefreshToken); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	if _, err := s.client.Collection(s.tokenCollection).Doc(userID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store provider token: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) GetProviderToken(ctx context.Context, userID string) (*ProviderToken, error) {
	doc, err := s.client.Collection(s.tokenCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrProviderTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token from Firestore: %w", err)
	}

	var tokenDoc ProviderTokenDoc
	if err := doc.DataTo(&tokenDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	token := &ProviderToken{ExpiresAt: tokenDoc.ExpiresAt, UpdatedAt: tokenDoc.UpdatedAt}
	if token.AccessToken, err = s.encryptor.Decrypt(tokenDoc.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if tokenDoc.RefreshToken != "" {
		if token.RefreshToken, err = s.encryptor.Decrypt(tokenDoc.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}
	return token, nil
}
