package usecase

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/trungdq-ct/chat-core/internal/models"
)

// AuthUsecase verifies credentials issued elsewhere. Token issuance is out of
// scope here; we only resolve an opaque JWT to a user identity.
type AuthUsecase interface {
	ValidateToken(ctx context.Context, tokenString string) (*models.Identity, error)
}

type authClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

type authUsecase struct {
	secret []byte
}

func NewAuthUsecase(secret string) AuthUsecase {
	return &authUsecase{secret: []byte(secret)}
}

func (uc *authUsecase) ValidateToken(_ context.Context, tokenString string) (*models.Identity, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return uc.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, models.ErrPermissionDenied("invalid token")
	}

	return &models.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
	}, nil
}
