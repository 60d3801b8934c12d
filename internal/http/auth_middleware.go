package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auth-api/internal/service"
)

const authUserIDKey = "auth_user_id"

// AuthRequired valida el token de sesión de la cookie y guarda el id
// del usuario en el contexto. No toca la base de datos.
func AuthRequired(tokenSvc *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenSvc == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "token service not configured"})
			c.Abort()
			return
		}

		token, err := c.Cookie(sessionCookieName)
		if err != nil || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized. Login again"})
			c.Abort()
			return
		}

		userID, err := tokenSvc.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized. Login again"})
			c.Abort()
			return
		}

		c.Set(authUserIDKey, userID)
		c.Next()
	}
}

// GetAuthUserID obtiene el id de usuario resuelto por AuthRequired.
func GetAuthUserID(c *gin.Context) (string, bool) {
	val, ok := c.Get(authUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}
