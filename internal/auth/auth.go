// Package auth issues and checks the JWTs carried by API and WebSocket
// clients, and the one-shot link tokens used to attach a Telegram chat.
package auth

import (
	"adoptchat/backend/internal/models"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeAccess = "access"
	purposeLink   = "link"

	// LinkTokenTTL bounds how long a Telegram /start link stays valid.
	LinkTokenTTL = 15 * time.Minute

	CtxUserID = "user_id"
	CtxRole   = "role"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID  string      `json:"uid"`
	Role    models.Role `json:"role,omitempty"`
	Purpose string      `json:"pur"`
	jwt.RegisteredClaims
}

func sign(c Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c.Subject = c.UserID
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func parse(tokenStr, secret, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Purpose != purpose || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func GenerateAccessToken(userID string, role models.Role, secret string, ttlMinutes int) (string, error) {
	return sign(Claims{UserID: userID, Role: role, Purpose: purposeAccess}, secret, time.Duration(ttlMinutes)*time.Minute)
}

func ParseAccessToken(tokenStr, secret string) (*Claims, error) {
	return parse(tokenStr, secret, purposeAccess)
}

// GenerateLinkToken returns a short-lived token the user passes to the bot as
// /start <token>.
func GenerateLinkToken(userID, secret string) (string, error) {
	return sign(Claims{UserID: userID, Purpose: purposeLink}, secret, LinkTokenTTL)
}

func ParseLinkToken(tokenStr, secret string) (*Claims, error) {
	return parse(tokenStr, secret, purposeLink)
}

// UserLookup loads the current record of a user.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// Middleware authenticates the request from the Authorization header, or the
// "token" query parameter for WebSocket upgrades. The role is read from the
// user record so promotions apply without a new token.
func Middleware(secret string, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c.GetHeader("Authorization"))
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := ParseAccessToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		c.Set(CtxUserID, user.ID)
		c.Set(CtxRole, user.Role)
		c.Next()
	}
}

func bearer(h string) string {
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Viewer returns the authenticated user id and role.
func Viewer(c *gin.Context) (string, models.Role) {
	role, _ := c.Get(CtxRole)
	r, _ := role.(models.Role)
	return c.GetString(CtxUserID), r
}

// RequireStaff rejects non-staff viewers.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, role := Viewer(c); !role.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff only"})
			return
		}
		c.Next()
	}
}
