package app

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"evalrag/internal/pkg/jwtutil"
)

var ErrInvalidCredential = errors.New("invalid username or password")

// AuthService authenticates the administrator account configured for
// destructive operations like resets and settings changes.
type AuthService struct {
	adminUsername     string
	adminPasswordHash string
	jwtSecret         string
	jwtExpiration     time.Duration
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token    string
	Username string
}

func NewAuthService(adminUsername, adminPasswordHash, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		adminUsername:     adminUsername,
		adminPasswordHash: adminPasswordHash,
		jwtSecret:         jwtSecret,
		jwtExpiration:     jwtExpiration,
	}
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	if username != s.adminUsername {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminPasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Username: username}, nil
}
