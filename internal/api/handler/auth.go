package handler

import (
	"strings"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const userIDKey = "user_id"

// Authenticator mints and verifies HS256 bearer tokens whose subject is the
// user id.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(cfg config.JWT) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// Mint issues a token for userID.
func (a *Authenticator) Mint(userID string) (string, error) {
	if userID == "" {
		return "", apperror.InvalidArg("user id is required")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify checks the signature, issuer and expiry of token and returns its
// subject.
func (a *Authenticator) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", apperror.Wrap(apperror.CodeUnauthenticated, "invalid or expired token", err)
	}
	if claims.Subject == "" {
		return "", apperror.Unauthenticated("token has no subject")
	}
	return claims.Subject, nil
}

// RequireAuth rejects requests without a valid token. Browsers cannot set
// headers on websocket requests, so the token may also come from the
// access_token query parameter.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, apperror.Unauthenticated("authorization token missing"))
			return
		}
		userID, err := h.Auth.Verify(token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return c.Query("access_token")
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
