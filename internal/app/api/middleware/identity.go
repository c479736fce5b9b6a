package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	cfgpkg "github.com/castaway-live/castaway/pkg/config"
	"github.com/castaway-live/castaway/pkg/response"
)

// IdentityClaims is the token payload issued by the account service.
type IdentityClaims struct {
	UserID        string `json:"user_id"`
	EmailVerified bool   `json:"email_verified"`
	jwt.StandardClaims
}

// IdentityMiddleware authenticates the Bearer token and stores user_id and
// email_verified on both the gin context and the request context, so
// downstream services and log enrichment see them.
func IdentityMiddleware(cfg *cfgpkg.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}

		claims := &IdentityClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil || !token.Valid || claims.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email_verified", claims.EmailVerified)

		ctx := context.WithValue(c.Request.Context(), "user_id", claims.UserID) //nolint:staticcheck
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
