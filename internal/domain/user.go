package domain

import "time"

// User es la única entidad persistente: una cuenta con sus dos
// canales de OTP independientes (verificación y reseteo).
type User struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	IsVerified         bool       `json:"is_verified"`
	VerifyOtp          string     `json:"-"`
	VerifyOtpExpiresAt *time.Time `json:"-"`
	ResetOtp           string     `json:"-"`
	ResetOtpExpiresAt  *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
