package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// AccountClaims are issued by the external identity provider. Subject is the
// account id that owns bots.
type AccountClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *AccountClaims) isAdmin(adminRole string) bool {
	return c.Role == adminRole
}

// authenticate verifies the bearer token and stores the claims under "account".
// Disabled accounts are rejected unless they carry the admin role.
func (e *env) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		l := requestLocalizer(c)

		authHeader := c.GetHeader("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": l.message("unauthorized")})
			return
		}

		claims := &AccountClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(e.config.Identity.JWTSecret), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
				logger.Warningf("authenticate %s: %v", c.Request.RequestURI, err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": l.message("unauthorized")})
			return
		}

		if !claims.isAdmin(e.config.Identity.AdminRole) {
			acc, err := e.orm.getAccount(claims.Subject)
			if err != nil {
				c.Error(err)
				c.Abort()
				return
			}

			if acc.Disabled {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": l.message(ErrAccountDisabled.Error())})
				return
			}
		}

		c.Set("account", claims)
	}
}

func (e *env) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentAccount(c).isAdmin(e.config.Identity.AdminRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": requestLocalizer(c).message(ErrForbidden.Error())})
		}
	}
}

func currentAccount(c *gin.Context) *AccountClaims {
	return c.MustGet("account").(*AccountClaims)
}

// MediaClaims grant read access to one file of one bot through the media proxy
type MediaClaims struct {
	BotID int    `json:"bot"`
	Path  string `json:"path"`
	jwt.RegisteredClaims
}

// signMediaLink returns a short-lived token for the proxied file
func (e *env) signMediaLink(botID int, filePath string) (string, error) {
	now := e.now()
	claims := MediaClaims{
		BotID: botID,
		Path:  filePath,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(e.config.Media.LinkTTLHours) * time.Hour)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(e.config.Identity.JWTSecret))
}

// verifyMediaLink checks that sig was issued for exactly this bot and file
func (e *env) verifyMediaLink(botID int, filePath, sig string) error {
	claims := &MediaClaims{}
	_, err := jwt.ParseWithClaims(sig, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(e.config.Identity.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(e.now), jwt.WithExpirationRequired())
	if err != nil {
		return errors.Wrap(ErrForbidden, err.Error())
	}

	if claims.BotID != botID || claims.Path != filePath {
		return errors.Wrap(ErrForbidden, "media link mismatch")
	}

	return nil
}
