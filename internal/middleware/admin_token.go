package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fhsh/makeup-exam-api/pkg/response"
)

// AdminTokenHeader carries the admin secret on admin routes.
const AdminTokenHeader = "X-Admin-Token"

type tokenAuthenticator interface {
	Authenticate(presented string) error
}

// AdminToken protects routes by requiring the admin secret.
func AdminToken(auth tokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Authenticate(c.GetHeader(AdminTokenHeader)); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
