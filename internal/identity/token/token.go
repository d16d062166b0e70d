// Package token signs and verifies the bearer credentials presented on HTTP
// requests and live connections.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"apb/internal/identity/models"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

// Claims represents the JWT claims carried by an access token.
type Claims struct {
	UserID   string `json:"user_id"`
	AgencyID string `json:"agency_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal parses the identity claims. A token that verified but carries
// malformed identity is treated the same as an invalid token.
func (c *Claims) Principal() (models.Principal, error) {
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return models.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	agencyID, err := id.ParseAgencyID(c.AgencyID)
	if err != nil {
		return models.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return models.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return models.Principal{UserID: userID, HomeAgencyID: agencyID, Role: role}, nil
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken mints a token for p. Used by the ops CLI and tests; the
// production login flow lives outside this service.
func (s *JWTService) GenerateAccessToken(p models.Principal, expiresIn time.Duration) (string, error) {
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   p.UserID.String(),
		AgencyID: p.HomeAgencyID.String(),
		Role:     p.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// Verify validates tokenString and returns the principal it names.
func (s *JWTService) Verify(tokenString string) (models.Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return models.Principal{}, err
	}
	return claims.Principal()
}
