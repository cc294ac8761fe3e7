package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"community-hub/contract"
	"community-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var ErrUserAlreadyExists = errors.New("user already exists")

// UserStore persists accounts in BadgerDB, one JSON value per user keyed by
// email. Lookups during login go through the same key.
type UserStore struct {
	db *badger.DB
}

func NewUserStore(db *badger.DB) contract.IUserStore {
	return &UserStore{db: db}
}

// CreateUser persists the user with its already hashed password.
// It returns the newly generated user ID.
func (u *UserStore) CreateUser(email, displayName, hashedPassword string) (string, error) {
	user := domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := []byte("user:" + email)
		if _, err := txn.Get(key); err == nil {
			return ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})

	return user.ID, err
}

// GetUserByEmail retrieves a user from Badger.
func (u *UserStore) GetUserByEmail(email string) (domain.User, error) {
	var user domain.User

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + email))
		if err != nil {
			return err // Will be handled as ErrInvalidCredentials or ErrNotFound
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})

	if err != nil {
		return domain.User{}, err
	}

	return user, nil
}
