package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenManager_IssueAndVerify(t *testing.T) {
	req := require.New(t)
	m := NewTokenManager("unit-test-secret", "community-hub", time.Hour)

	// Given an issued token
	token, err := m.Issue("u-42", "Alice", []string{"member"})
	req.NoError(err)
	req.NotEmpty(token)

	// Then verification returns the original claims
	claims, err := m.Verify(token)
	req.NoError(err)
	req.Equal("u-42", claims.UserID)
	req.Equal("Alice", claims.DisplayName)
	req.Equal([]string{"member"}, claims.Roles)
	req.Equal("community-hub", claims.Issuer)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	req := require.New(t)
	m := NewTokenManager("unit-test-secret", "community-hub", -time.Minute)

	token, err := m.Issue("u-42", "Alice", nil)
	req.NoError(err)

	_, err = m.Verify(token)
	req.Error(err)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenManager("secret-one", "community-hub", time.Hour)
	verifier := NewTokenManager("secret-two", "community-hub", time.Hour)

	token, err := issuer.Issue("u-42", "Alice", nil)
	req.NoError(err)

	_, err = verifier.Verify(token)
	req.Error(err)
}

func TestPassword_HashAndVerifyRoundTrip(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("S3cure&Enough#Pass")
	req.NoError(err)
	req.Contains(hash, "$argon2id$")

	ok, err := VerifyPassword("S3cure&Enough#Pass", hash)
	req.NoError(err)
	req.True(ok)

	ok, err = VerifyPassword("wrong-password", hash)
	req.NoError(err)
	req.False(ok)
}

func TestPassword_TwoHashesOfSamePasswordDiffer(t *testing.T) {
	req := require.New(t)

	h1, err := HashPassword("S3cure&Enough#Pass")
	req.NoError(err)
	h2, err := HashPassword("S3cure&Enough#Pass")
	req.NoError(err)
	req.NotEqual(h1, h2)
}

func TestPassword_MalformedHashIsRejected(t *testing.T) {
	req := require.New(t)

	_, err := VerifyPassword("whatever", "not-a-hash")
	req.ErrorIs(err, ErrMalformedHash)

	_, err = VerifyPassword("whatever", "$bcrypt$v=19$m=1,t=1,p=1$abc$def")
	req.ErrorIs(err, ErrMalformedHash)
}

func TestValidateRegister(t *testing.T) {
	req := require.New(t)

	valid := RegisterRequest{
		Email:       "alice@example.edu",
		DisplayName: "Alice",
		Password:    "Adm1n&Passw0rd!",
	}
	req.NoError(ValidateRegister(valid))

	// Missing complexity
	weak := valid
	weak.Password = "alllowercaseletters"
	req.ErrorIs(ValidateRegister(weak), ErrWeakPassword)

	// Too short even if complex
	short := valid
	short.Password = "Ab1!"
	req.Error(ValidateRegister(short))

	// Broken email
	badMail := valid
	badMail.Email = "not-an-email"
	req.Error(ValidateRegister(badMail))

	// Display name required
	anon := valid
	anon.DisplayName = ""
	req.Error(ValidateRegister(anon))
}
