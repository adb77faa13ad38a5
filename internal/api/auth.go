package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const operatorContextKey = "Operator"

// OperatorClaims represents JWT claims for the operator driving the gateway.
type OperatorClaims struct {
	Operator string `json:"op"`
	jwt.RegisteredClaims
}

// IssueToken signs a bearer token for operator valid until expiresAt.
func IssueToken(operator, secret string, expiresAt time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	claims := OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &OperatorClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*OperatorClaims); ok && token.Valid && claims.Operator != "" {
		return claims.Operator, nil
	}
	return "", errors.New("invalid token claims")
}

// AuthMiddleware enforces JWT auth for routes that touch the exchange.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondError(c, http.StatusUnauthorized, "MISSING_TOKEN", "missing Authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respondError(c, http.StatusUnauthorized, "INVALID_AUTH_HEADER", "invalid Authorization header")
			c.Abort()
			return
		}

		operator, err := parseToken(parts[1], secret)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(operatorContextKey, operator)
		c.Next()
	}
}

// CurrentOperator returns the authenticated operator from context.
func CurrentOperator(c *gin.Context) string {
	return c.GetString(operatorContextKey)
}
