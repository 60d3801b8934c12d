package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-api/internal/service"
)

// UserHandler mantiene dependencias para los endpoints de usuario.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
}

func NewUserHandler(logger *zap.Logger, userServ *service.UserService) *UserHandler {
	return &UserHandler{
		logger:   logger,
		userServ: userServ,
	}
}

// GetUserData maneja GET /api/user/data.
func (h *UserHandler) GetUserData(c *gin.Context) {
	userID, ok := GetAuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized. Login again"})
		return
	}

	user, err := h.userServ.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
			return
		}
		h.logger.Error("get user data failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not get user data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"userData": gin.H{
			"name":       user.Name,
			"email":      user.Email,
			"isVerified": user.IsVerified,
		},
	})
}
