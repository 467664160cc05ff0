// Package auth verifies the bearer tokens that identify uploaders. Tokens are minted by the
// account service; this process only needs the shared secret to check them.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/addonhub/addonhub/internal/config"
)

// Issuer is written into and required from every token.
const Issuer = "addonhub"

const minSecretLength = 32

var (
	// ErrMissingSecret is returned when no secret is configured outside dev mode.
	ErrMissingSecret = errors.New("auth.jwt_secret is required unless auth.dev_mode is enabled")
	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens with one shared secret.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager builds a manager from cfg. In dev mode an empty secret is replaced with a
// random one, so tokens stop validating after a restart.
func NewTokenManager(cfg config.AuthConfig) (*TokenManager, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if !cfg.DevMode {
			return nil, ErrMissingSecret
		}
		generated, err := randomSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
		slog.Warn("auth.jwt_secret not set, using a generated secret for development")
	} else if len(secret) < minSecretLength {
		slog.Warn("auth.jwt_secret is shorter than recommended", "min_length", minSecretLength)
	}

	return &TokenManager{secret: []byte(secret), now: time.Now}, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Generate signs a token for userID. A zero ttl means one hour.
func (m *TokenManager) Generate(userID int64, role string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = time.Hour
	}
	now := m.now()

	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate parses tokenString and returns its claims. Any failure is reported as
// ErrInvalidToken wrapping the parser error.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
