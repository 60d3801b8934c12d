package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"auth-api/internal/domain"
	"auth-api/internal/email"
	"auth-api/internal/repository"
)

// UserService coordina registro, autenticación y el ciclo de vida
// de los OTP de verificación y reseteo.
type UserService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	emailSender email.Sender
	otpLimiter  OTPRateLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, emailSender email.Sender, otpLimiter OTPRateLimiter) *UserService {
	if otpLimiter == nil {
		otpLimiter = NewOTPRateLimiter(10*time.Minute, 3)
	}
	return &UserService{
		logger:      logger,
		users:       users,
		emailSender: emailSender,
		otpLimiter:  otpLimiter,
	}
}

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrOTPInvalid         = errors.New("otp invalid")
	ErrOTPExpired         = errors.New("otp expired")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
)

const (
	verifyOTPTTL = 24 * time.Hour
	resetOTPTTL  = 15 * time.Minute
)

// Register crea la cuenta con los canales de OTP vacíos y envía el
// correo de bienvenida. La cuenta queda creada aunque ese envío falle.
func (s *UserService) Register(ctx context.Context, name, emailAddr, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	name = strings.TrimSpace(name)
	emailAddr = strings.TrimSpace(emailAddr)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	if s.emailSender != nil {
		if err := s.emailSender.SendWelcome(ctx, emailAddr); err != nil && s.logger != nil {
			s.logger.Warn("send welcome email failed", zap.Error(err), zap.String("email", emailAddr))
		}
	}

	return user, nil
}

// Authenticate devuelve el mismo error para email desconocido y para
// contraseña incorrecta.
func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser busca una cuenta por id.
func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// SendVerifyOTP emite un código de verificación con vigencia de 24 horas
// y lo envía por correo. Un código pendiente anterior queda sobrescrito.
func (s *UserService) SendVerifyOTP(ctx context.Context, userID string) error {
	if s.users == nil {
		return errors.New("user service not configured")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	if s.otpLimiter != nil && !s.otpLimiter.Allow(otpChannelVerify, user.Email) {
		return ErrRateLimited
	}

	code, err := generateOTPCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(verifyOTPTTL)

	if err := s.users.UpdateVerifyOTP(ctx, user.ID, code, expiresAt); err != nil {
		return err
	}

	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	if err := s.emailSender.SendVerificationOTP(ctx, user.Email, code); err != nil {
		if s.logger != nil {
			s.logger.Warn("send verification otp failed", zap.Error(err), zap.String("email", user.Email))
		}
		return ErrEmailSendFailure
	}
	return nil
}

// VerifyAccount consume el código de verificación. En éxito la cuenta
// queda verificada de forma irreversible y el canal se limpia.
func (s *UserService) VerifyAccount(ctx context.Context, userID, code string) error {
	if s.users == nil {
		return errors.New("user service not configured")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if err := matchOTP(user.VerifyOtp, user.VerifyOtpExpiresAt, code); err != nil {
		return err
	}

	return s.users.MarkVerified(ctx, user.ID)
}

// SendResetOTP emite un código de reseteo con vigencia de 15 minutos.
func (s *UserService) SendResetOTP(ctx context.Context, emailAddr string) error {
	if s.users == nil {
		return errors.New("user service not configured")
	}

	emailAddr = strings.TrimSpace(emailAddr)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if s.otpLimiter != nil && !s.otpLimiter.Allow(otpChannelReset, user.Email) {
		return ErrRateLimited
	}

	code, err := generateOTPCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(resetOTPTTL)

	if err := s.users.UpdateResetOTP(ctx, user.ID, code, expiresAt); err != nil {
		return err
	}

	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	if err := s.emailSender.SendPasswordResetOTP(ctx, user.Email, code); err != nil {
		if s.logger != nil {
			s.logger.Warn("send reset otp failed", zap.Error(err), zap.String("email", user.Email))
		}
		return ErrEmailSendFailure
	}
	return nil
}

// VerifyResetOTP comprueba el código de reseteo sin consumirlo: el canal
// se limpia recién al confirmar la nueva contraseña. Eso permite validar
// el código en un paso y enviar la contraseña en otro.
func (s *UserService) VerifyResetOTP(ctx context.Context, emailAddr, code string) error {
	if s.users == nil {
		return errors.New("user service not configured")
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	return matchOTP(user.ResetOtp, user.ResetOtpExpiresAt, code)
}

// ResetPassword reemplaza el hash y limpia el canal de reseteo. No exige
// que VerifyResetOTP se haya llamado antes: el cliente es quien secuencia
// ambos pasos.
func (s *UserService) ResetPassword(ctx context.Context, emailAddr, newPassword string) error {
	if s.users == nil {
		return errors.New("user service not configured")
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.users.UpdatePassword(ctx, user.ID, string(hashBytes))
}

// matchOTP aplica las reglas de consumo: sin código pendiente o sin
// coincidencia exacta es inválido; la expiración se evalúa después y el
// código expirado no se limpia.
func matchOTP(stored string, expiresAt *time.Time, submitted string) error {
	if stored == "" {
		return ErrOTPInvalid
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) != 1 {
		return ErrOTPInvalid
	}
	if expiresAt == nil || time.Now().UTC().After(*expiresAt) {
		return ErrOTPExpired
	}
	return nil
}

// generateOTPCode produce un código de 6 dígitos en [100000, 999999].
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
