package middlewares

import (
	"net/http"

	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the "token" header to a redis-backed session
// and stamps the request context with the caller's identity and tenant.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		session, err := models.GetSession(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetCompanyIdInContext(ctx, session.CompanyId)
		ctx = utils.SetUserIdInContext(ctx, session.UserId)
		ctx = utils.SetUsernameInContext(ctx, session.Username)
		if session.Role == models.UserRoleAdmin {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireSession guards endpoints that need an authenticated tenant.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetCompanyIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
