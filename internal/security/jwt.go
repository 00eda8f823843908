package security

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/meethub/meeting-service/internal/domain"
)

// Verifier checks bearer tokens issued by the identity service.
// This service only verifies; it never signs user tokens.
type Verifier struct {
	key       []byte
	issuer    string
	clockSkew time.Duration
}

func NewVerifier(key []byte, issuer string) *Verifier {
	return &Verifier{
		key:       key,
		issuer:    issuer,
		clockSkew: 30 * time.Second,
	}
}

type AccessClaims struct {
	jwt.StandardClaims
	Name string `json:"name,omitempty"`
}

// Verify parses the token and returns the subject user id.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return "", domain.ErrUnauthenticated
	}

	claims := &AccessClaims{}
	// стандартную проверку exp/nbf пропускаем: она без допуска на рассинхрон
	// часов, ниже своя с clockSkew
	parser := jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrUnauthenticated
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return "", domain.ErrUnauthenticated
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return "", domain.ErrUnauthenticated
	}

	// exp/nbf с допуском clockSkew
	now := time.Now()
	if claims.ExpiresAt != 0 && now.After(time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)) {
		return "", domain.ErrUnauthenticated
	}
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-v.clockSkew)) {
		return "", domain.ErrUnauthenticated
	}

	if claims.Subject == "" {
		return "", domain.ErrUnauthenticated
	}
	return claims.Subject, nil
}

// Sign выпускает токен с sub=userID; используется только в тестах и dev-утилитах.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}
