package relay

import (
	"errors"
	"fmt"

	"community-hub/auth"
	"community-hub/contract"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrTokenGeneration    = errors.New("token generation failed")
)

// AuthService owns the account lifecycle: registration, login, and the JWT
// that lets a session open the websocket.
type AuthService struct {
	users  contract.IUserStore
	tokens *auth.TokenManager
}

func NewAuthService(users contract.IUserStore, tokens *auth.TokenManager) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Register(email, displayName, password string) (string, error) {
	valReq := auth.RegisterRequest{
		Email:       email,
		DisplayName: displayName,
		Password:    password,
	}

	// 1. Validate business rules (email format, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the store unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	userID, err := s.users.CreateUser(email, displayName, hashedPassword)
	if err != nil {
		return "", err // Will propagate ErrUserAlreadyExists if email is taken
	}

	// 4. Generate the initial session token
	token, err := s.tokens.Issue(userID, displayName, []string{"user"})
	if err != nil {
		return "", ErrTokenGeneration
	}

	return token, nil
}

func (s *AuthService) Login(email, password string) (string, error) {
	// 1. Retrieve user by email from storage
	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	token, err := s.tokens.Issue(user.ID, user.DisplayName, user.Roles)
	if err != nil {
		return "", ErrTokenGeneration
	}

	return token, nil
}
