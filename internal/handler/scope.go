package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/auth"
	"github.com/dunmininu/oms-trading/internal/service"
)

// requestScope builds the tenant scope from the claims the auth
// middleware pinned on the request. Handlers behind the middleware can
// rely on a non-zero tenant.
func requestScope(c *gin.Context) service.Scope {
	claims, _ := auth.GetClaims(c)
	return service.Scope{
		TenantID:  claims.TenantID,
		UserID:    claims.Subject,
		Subdomain: claims.Subdomain,
	}
}
