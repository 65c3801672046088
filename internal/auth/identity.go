package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const sessionKey = "auth_session"

var ErrTokenInvalid = errors.New("token invalid")

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenStore persists the signed-in token across restarts.
type TokenStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Identity holds the remote identity the device is signed in as. The hosted
// backend issues the token; this process only verifies and keeps it.
type Identity struct {
	secret []byte
	store  TokenStore
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	userID    string
	expiresAt time.Time
}

func NewIdentity(secret string, store TokenStore) *Identity {
	return &Identity{secret: []byte(secret), store: store, now: time.Now}
}

// Restore loads a previously stored token. An expired or unreadable token
// leaves the identity signed out.
func (i *Identity) Restore(ctx context.Context) bool {
	if i.store == nil {
		return false
	}
	raw, err := i.store.Get(ctx, sessionKey)
	if err != nil {
		return false
	}
	claims, err := ValidateToken(string(i.secret), string(raw))
	if err != nil {
		logrus.WithError(err).Info("stored session no longer valid")
		_ = i.store.Delete(ctx, sessionKey)
		return false
	}
	i.set(string(raw), claims)
	return true
}

func (i *Identity) SignIn(ctx context.Context, token string) (string, error) {
	claims, err := ValidateToken(string(i.secret), token)
	if err != nil {
		return "", err
	}
	if i.store != nil {
		if err := i.store.Put(ctx, sessionKey, []byte(token)); err != nil {
			return "", err
		}
	}
	i.set(token, claims)
	logrus.WithField("user_id", claims.UserID).Info("signed in")
	return claims.UserID, nil
}

func (i *Identity) SignOut(ctx context.Context) error {
	i.mu.Lock()
	i.token, i.userID, i.expiresAt = "", "", time.Time{}
	i.mu.Unlock()
	if i.store == nil {
		return nil
	}
	return i.store.Delete(ctx, sessionKey)
}

// UserID reports the signed-in user, treating an expired token as signed out.
func (i *Identity) UserID() (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.userID == "" {
		return "", false
	}
	if !i.expiresAt.IsZero() && !i.now().Before(i.expiresAt) {
		return "", false
	}
	return i.userID, true
}

func (i *Identity) Token() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.token
}

func (i *Identity) set(token string, claims *Claims) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.token = token
	i.userID = claims.UserID
	i.expiresAt = time.Time{}
	if claims.ExpiresAt != nil {
		i.expiresAt = claims.ExpiresAt.Time
	}
}

// IssueToken signs an HS256 token for userID. The hosted backend does this
// in production; it is used here for local tooling and tests.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

var parseClaimsFn = jwt.ParseWithClaims

func ValidateToken(secret, token string) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
