package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Claims is the JWT payload identifying the caller. Factory doesn't run
// its own login flow — tokens are issued by a trusted upstream identity
// provider and carry the caller's owner identity directly.
type Claims struct {
	Owner string `json:"owner"`
	jwt.RegisteredClaims
}

// JWTMiddleware validates bearer tokens and exposes the caller's identity.
type JWTMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

// NewJWTMiddleware creates a new JWT middleware.
func NewJWTMiddleware(secret string, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// Auth is the gin middleware enforcing a valid bearer token on a route.
func (m *JWTMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "authorization header is required"}})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "invalid authorization header format"}})
			c.Abort()
			return
		}

		tokenString := parts[1]

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		})

		if err != nil {
			m.logger.Warnf("Invalid token: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "invalid token"}})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid || claims.Owner == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "invalid token claims"}})
			c.Abort()
			return
		}

		c.Set("owner", claims.Owner)
		c.Next()
	}
}

// GenerateToken issues a token for owner signed with the middleware's
// secret. Nothing in this repository calls it — Factory's production
// deployment expects tokens to come from an upstream identity provider
// using the same secret.
func (m *JWTMiddleware) GenerateToken(owner string, expiration time.Duration) (string, error) {
	claims := Claims{
		Owner: owner,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		m.logger.Errorf("Failed to sign token: %v", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// GetOwner extracts the authenticated caller's identity from the request
// context. Must only be called behind Auth().
func GetOwner(c *gin.Context) (string, error) {
	owner, exists := c.Get("owner")
	if !exists {
		return "", fmt.Errorf("owner not found in context")
	}

	s, ok := owner.(string)
	if !ok {
		return "", fmt.Errorf("invalid owner type")
	}

	return s, nil
}
