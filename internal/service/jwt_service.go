package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smsauth/smsauth/internal/config"
)

// JWTService signs and verifies session credentials. A credential is an
// HS256 JWT whose subject is the canonical phone number, marked with an
// "auth":"sms" claim so consumers know how the subject was proven.
type JWTService struct {
	secretKey   []byte
	tokenExpiry time.Duration
	logger      *logrus.Logger
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey:   secretKey,
		tokenExpiry: cfg.TokenExpiry,
		logger:      logger,
	}, nil
}

type Claims struct {
	Auth string `json:"auth"`
	jwt.RegisteredClaims
}

// Issue returns a signed credential for the given phone number, valid for
// the configured expiry.
func (s *JWTService) Issue(phoneNumber string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Auth: "sms",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phoneNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign token")
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// VerifyToken parses and validates a credential, returning its claims.
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// TokenExpiry reports the configured credential lifetime.
func (s *JWTService) TokenExpiry() time.Duration {
	return s.tokenExpiry
}
