// Package jwt реализует шлюз идентификации: проверку токенов, выпущенных внешним
// провайдером, и получение стабильного идентификатора аккаунта (subject).
//
// Verifier проверяет подпись HS256, срок действия, издателя и аудиторию.
// Maker выпускает токены с теми же claims и используется в тестах и локальной разработке.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/paywall/internal/errs"
	"github.com/magabrotheeeer/paywall/internal/models"
)

// CustomClaims описывает данные, которые провайдер кладёт в токен.
type CustomClaims struct {
	Email                string `json:"email,omitempty"`
	Name                 string `json:"name,omitempty"`
	jwt.RegisteredClaims        // Subject — идентификатор аккаунта
}

// Verifier проверяет токены провайдера идентификации.
type Verifier struct {
	secretKey []byte
	issuer    string
	audience  string
	leeway    time.Duration
}

// NewVerifier создаёт Verifier. Пустые issuer и audience не проверяются.
func NewVerifier(secretKey, issuer, audience string) *Verifier {
	return &Verifier{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		audience:  audience,
		leeway:    30 * time.Second,
	}
}

// Verify проверяет токен и возвращает принципала. Любая ошибка проверки
// сводится к errs.ErrInvalidToken.
func (v *Verifier) Verify(tokenStr string) (*models.Principal, error) {
	const op = "jwt.Verify"
	if tokenStr == "" {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return v.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, errs.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w: %w", op, errs.ErrInvalidToken, errors.New("empty subject"))
	}

	return &models.Principal{
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

// Maker выпускает токены, совместимые с Verifier.
type Maker struct {
	secretKey []byte
	issuer    string
	audience  string
	tokenTTL  time.Duration
}

// NewMaker создаёт Maker на основе секретного ключа и TTL.
func NewMaker(secretKey, issuer, audience string, ttl time.Duration) *Maker {
	return &Maker{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		audience:  audience,
		tokenTTL:  ttl,
	}
}

// GenerateToken создаёт токен для принципала.
func (m *Maker) GenerateToken(p models.Principal) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Email: p.Email,
		Name:  p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.SubjectID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}
