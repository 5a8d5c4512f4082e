package session

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthorizer accepts "Authorization: Bearer <token>" signed with HS256.
type JWTAuthorizer struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTAuthorizer(secret string) *JWTAuthorizer {
	return &JWTAuthorizer{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (a *JWTAuthorizer) Authorize(r *http.Request) (Identity, error) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		return Identity{}, ErrNoSession
	}

	claims := &jwt.RegisteredClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrNoSession
	}

	return Identity{SubjectID: claims.Subject}, nil
}

var _ Authorizer = (*JWTAuthorizer)(nil)
