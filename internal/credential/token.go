package credential

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken — токен повреждён, просрочен, подписан другим ключом
// или выпущен для другого действия. Причина наружу не раскрывается.
var ErrInvalidToken = errors.New("недействительный или просроченный токен")

// Kind — назначение токена.
type Kind string

// Назначения токенов.
const (
	KindConfirm     Kind = "confirm"
	KindReset       Kind = "reset"
	KindChangeEmail Kind = "change_email"
)

// Claims — содержимое токена действия.
type Claims struct {
	Kind    Kind              `json:"kind"`
	Payload map[string]string `json:"payload,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID возвращает идентификатор пользователя из claim sub.
func (c *Claims) SubjectID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Tokens выпускает и проверяет токены действий (HS256).
// Токены не одноразовые: повторное погашение успешно до истечения срока.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens создаёт выпускающий токены объект с секретом подписи.
func NewTokens(secret string) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("секрет подписи токенов не задан")
	}
	return &Tokens{secret: []byte(secret), now: time.Now}, nil
}

// Issue выпускает токен назначения kind для пользователя subjectID
// с необязательной полезной нагрузкой и сроком жизни ttl.
func (t *Tokens) Issue(kind Kind, subjectID int64, payload map[string]string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Kind:    kind,
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// Redeem проверяет подпись, срок и назначение токена.
// Любая ошибка проверки сводится к ErrInvalidToken.
func (t *Tokens) Redeem(token string, expected Kind) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != expected {
		return nil, ErrInvalidToken
	}
	if _, err := claims.SubjectID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
