package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/gitreportshq/gitreports/models"
)

const (
	// session key holding the GitHub OAuth token of the logged-in user
	ACCESS_TOKEN_KEY = "access_token"
	// gin context key holding the resolved *models.User
	CURRENT_USER_KEY = "currentUser"
)

// SessionAuth resolves the logged-in user from the session token and aborts
// to the login page when there is none.
func SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, ok := session.Get(ACCESS_TOKEN_KEY).(string)
		if !ok || token == "" {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		user, err := models.DB.GetUserByAccessToken(token)
		if err != nil {
			c.String(http.StatusInternalServerError, "Unknown error occurred while fetching database")
			c.Abort()
			return
		}
		if user == nil {
			slog.Debug("session token no longer maps to a user, clearing session")
			session.Delete(ACCESS_TOKEN_KEY)
			if err := session.Save(); err != nil {
				slog.Error("failed to save session", "error", err)
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		c.Set(CURRENT_USER_KEY, user)
		c.Next()
	}
}

// CurrentUser returns the user resolved by SessionAuth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(CURRENT_USER_KEY)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
