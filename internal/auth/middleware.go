package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth.claims"

func SetClaims(c *gin.Context, claims Claims) {
	c.Set(claimsKey, claims)
}

func GetClaims(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// Middleware verifies the bearer token and pins the tenant claims on the
// request context. Routes that skip it are public by construction.
func Middleware(j JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		SetClaims(c, claims)
		c.Next()
	}
}

// DevBypass replaces token verification for local runs with auth
// disabled. The tenant comes from X-Tenant-ID, defaulting to 1.
func DevBypass() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := uint64(1)
		if raw := strings.TrimSpace(c.GetHeader("X-Tenant-ID")); raw != "" {
			if v, err := strconv.ParseUint(raw, 10, 64); err == nil && v > 0 {
				tenantID = v
			}
		}
		claims := Claims{
			TenantID:  tenantID,
			Subdomain: strings.TrimSpace(c.GetHeader("X-Tenant-Subdomain")),
		}
		claims.Subject = "dev"
		if user := strings.TrimSpace(c.GetHeader("X-User-ID")); user != "" {
			claims.Subject = user
		}
		SetClaims(c, claims)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
