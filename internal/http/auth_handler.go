package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-api/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger    *zap.Logger
	userServ  *service.UserService
	tokenServ *service.TokenService
	cookies   CookieOptions
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, userServ *service.UserService, tokenServ *service.TokenService, cookies CookieOptions) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		userServ:  userServ,
		tokenServ: tokenServ,
		cookies:   cookies,
	}
}

// Register maneja POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,min=3"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userServ.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "User already exists"})
			return
		}
		h.logger.Error("register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not register user"})
		return
	}

	token, err := h.tokenServ.Issue(user.ID)
	if err != nil {
		h.logger.Error("session token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not create session"})
		return
	}

	setSessionCookie(c, h.cookies, token)
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// Login maneja POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userServ.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid email or password"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not login"})
		return
	}

	token, err := h.tokenServ.Issue(user.ID)
	if err != nil {
		h.logger.Error("session token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not create session"})
		return
	}

	setSessionCookie(c, h.cookies, token)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Logout maneja POST /api/auth/logout. Es idempotente: sin sesión
// activa igual responde éxito.
func (h *AuthHandler) Logout(c *gin.Context) {
	clearSessionCookie(c, h.cookies)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

// SendVerifyOtp maneja POST /api/auth/send-verify-otp.
func (h *AuthHandler) SendVerifyOtp(c *gin.Context) {
	userID, ok := GetAuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized. Login again"})
		return
	}

	if err := h.userServ.SendVerifyOTP(c.Request.Context(), userID); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		case errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Account already verified"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Email delivery unavailable"})
		default:
			h.logger.Error("send verify otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not send OTP"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Verification OTP sent on email"})
}

// VerifyAccount maneja POST /api/auth/verify-account.
func (h *AuthHandler) VerifyAccount(c *gin.Context) {
	userID, ok := GetAuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized. Login again"})
		return
	}

	var req struct {
		Otp string `json:"otp" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userServ.VerifyAccount(c.Request.Context(), userID, req.Otp); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		case errors.Is(err, service.ErrOTPInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid OTP"})
		case errors.Is(err, service.ErrOTPExpired):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "OTP expired"})
		default:
			h.logger.Error("verify account failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not verify account"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified successfully"})
}

// IsAuthenticated maneja GET /api/auth/is-auth. El trabajo real lo hizo
// el middleware; acá solo se confirma.
func (h *AuthHandler) IsAuthenticated(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendResetOtp maneja POST /api/auth/send-reset-otp.
func (h *AuthHandler) SendResetOtp(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userServ.SendResetOTP(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Email delivery unavailable"})
		default:
			h.logger.Error("send reset otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not send OTP"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP sent to your email"})
}

// VerifyResetOtp maneja POST /api/auth/verify-reset-otp.
func (h *AuthHandler) VerifyResetOtp(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Otp   string `json:"otp" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userServ.VerifyResetOTP(c.Request.Context(), req.Email, req.Otp); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		case errors.Is(err, service.ErrOTPInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid OTP"})
		case errors.Is(err, service.ErrOTPExpired):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "OTP expired"})
		default:
			h.logger.Error("verify reset otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not verify OTP"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP verified successfully"})
}

// ResetPassword maneja POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		NewPassword string `json:"newPassword" binding:"required,min=6"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userServ.ResetPassword(c.Request.Context(), req.Email, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
			return
		}
		h.logger.Error("reset password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not reset password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed successfully"})
}
