package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CookieName is the UI session cookie.
const CookieName = "checkin_session"

// SessionAuth enforces a valid session cookie signed with HS256.
func SessionAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(CookieName)
		if err != nil || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}
