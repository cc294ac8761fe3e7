package relay

import (
	"testing"
	"time"

	"community-hub/auth"
	"community-hub/domain"
	"community-hub/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestTokenManager() *auth.TokenManager {
	return auth.NewTokenManager("test-secret-do-not-reuse", "community-hub", 24*time.Hour)
}

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockIUserStore(ctrl)
	svc := NewAuthService(mockStore, newTestTokenManager())

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPass123!" // Must satisfy the complexity rules
		expectedUserID := "user-uuid"

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockStore.EXPECT().
			CreateUser(email, "Zoe", gomock.Any()).
			Return(expectedUserID, nil).
			Times(1)

		token, err := svc.Register(email, "Zoe", password)

		req.NoError(err)
		req.NotEmpty(token)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "simple" // Fails validation

		// Store should NEVER be called
		mockStore.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		token, err := svc.Register(email, "Zoe", password)

		req.Error(err)
		req.ErrorIs(err, ErrInvalidPassword)
		req.Empty(token)
	})

	t.Run("should fail when user already exists in store", func(t *testing.T) {
		req := require.New(t)
		email := "duplicate@example.com"
		password := "ComplexPass123!"

		mockStore.EXPECT().
			CreateUser(email, "Zoe", gomock.Any()).
			Return("", ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(email, "Zoe", password)

		req.ErrorIs(err, ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockIUserStore(ctrl)
	tokens := newTestTokenManager()
	svc := NewAuthService(mockStore, tokens)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		password := "Secret123456!"

		hashedPassword, _ := auth.HashPassword(password)
		storedUser := domain.User{
			ID:           "uuid-123",
			Email:        email,
			DisplayName:  "Zoe",
			PasswordHash: hashedPassword,
			Roles:        []string{"user"},
		}

		mockStore.EXPECT().
			GetUserByEmail(email).
			Return(storedUser, nil).
			Times(1)

		token, err := svc.Login(email, password)

		req.NoError(err)
		req.NotEmpty(token)

		// Optional: validate token claims
		claims, err := tokens.Verify(token)
		req.NoError(err)
		req.Equal(storedUser.ID, claims.UserID)
		req.Equal(storedUser.DisplayName, claims.DisplayName)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"

		hashedPassword, _ := auth.HashPassword("CorrectPassword123!")
		storedUser := domain.User{
			Email:        email,
			PasswordHash: hashedPassword,
		}

		mockStore.EXPECT().
			GetUserByEmail(email).
			Return(storedUser, nil).
			Times(1)

		_, err := svc.Login(email, "WrongPassword123!")

		req.ErrorIs(err, ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().
			GetUserByEmail("unknown@example.com").
			Return(domain.User{}, ErrInvalidCredentials).
			Times(1)

		_, err := svc.Login("unknown@example.com", "anyPassword")

		req.ErrorIs(err, ErrInvalidCredentials)
	})
}
