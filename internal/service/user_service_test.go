package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"auth-api/internal/domain"
	"auth-api/internal/repository"
)

type mockUserRepo struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if _, exists := m.usersByEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) UpdateVerifyOTP(_ context.Context, id, code string, expiresAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.VerifyOtp = code
	user.VerifyOtpExpiresAt = &expiresAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) MarkVerified(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.IsVerified = true
	user.VerifyOtp = ""
	user.VerifyOtpExpiresAt = nil
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdateResetOTP(_ context.Context, id, code string, expiresAt time.Time) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.ResetOtp = code
	user.ResetOtpExpiresAt = &expiresAt
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.ResetOtp = ""
	user.ResetOtpExpiresAt = nil
	m.usersByID[id] = user
	return nil
}

type mockEmailSender struct {
	welcomeTo  string
	verifyTo   string
	verifyCode string
	resetTo    string
	resetCode  string
	welcomeErr error
	verifyErr  error
	resetErr   error
}

func (m *mockEmailSender) SendWelcome(_ context.Context, toEmail string) error {
	m.welcomeTo = toEmail
	return m.welcomeErr
}

func (m *mockEmailSender) SendVerificationOTP(_ context.Context, toEmail string, code string) error {
	m.verifyTo = toEmail
	m.verifyCode = code
	return m.verifyErr
}

func (m *mockEmailSender) SendPasswordResetOTP(_ context.Context, toEmail string, code string) error {
	m.resetTo = toEmail
	m.resetCode = code
	return m.resetErr
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(_, _ string) bool {
	return m.allow
}

func newTestService(repo *mockUserRepo, sender *mockEmailSender) *UserService {
	return NewUserService(zap.NewNop(), repo, sender, &mockLimiter{allow: true})
}

func TestRegisterSendsWelcomeEmail(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	user, err := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.IsVerified {
		t.Fatalf("new accounts must start unverified")
	}
	if user.VerifyOtp != "" || user.ResetOtp != "" {
		t.Fatalf("new accounts must start with empty otp channels")
	}
	if sender.welcomeTo != "a@x.com" {
		t.Fatalf("expected welcome email to a@x.com, got %q", sender.welcomeTo)
	}
}

func TestRegisterSucceedsWhenWelcomeEmailFails(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{welcomeErr: errors.New("smtp down")}
	svc := newTestService(repo, sender)

	if _, err := svc.Register(context.Background(), "Alice", "a@x.com", "secret1"); err != nil {
		t.Fatalf("registration must not fail on welcome email failure, got %v", err)
	}
}

func TestRegisterDuplicateEmailLeavesFirstAccountIntact(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	first, err := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Register(context.Background(), "Mallory", "a@x.com", "other1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	stored, err := repo.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ID != first.ID || stored.Name != "Alice" {
		t.Fatalf("duplicate registration must not alter the first account")
	}
}

func TestAuthenticateAntiEnumeration(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	if _, err := svc.Register(context.Background(), "Alice", "a@x.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "a@x.com", "secret1"); err != nil {
		t.Fatalf("expected correct password to authenticate, got %v", err)
	}

	_, wrongPass := svc.Authenticate(context.Background(), "a@x.com", "nope99")
	_, unknownEmail := svc.Authenticate(context.Background(), "b@x.com", "secret1")
	if !errors.Is(wrongPass, ErrInvalidCredentials) || !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("wrong password and unknown email must fail identically, got %v / %v", wrongPass, unknownEmail)
	}
}

func TestVerifyOTPLifecycle(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	user, err := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.SendVerifyOTP(context.Background(), user.ID); err != nil {
		t.Fatalf("send verify otp: %v", err)
	}
	if sender.verifyTo != "a@x.com" || sender.verifyCode == "" {
		t.Fatalf("expected otp email to be sent")
	}

	stored, _ := repo.GetByID(context.Background(), user.ID)
	if stored.VerifyOtp != sender.verifyCode {
		t.Fatalf("stored code must match the emailed code")
	}
	window := time.Until(*stored.VerifyOtpExpiresAt)
	if window < 23*time.Hour || window > 25*time.Hour {
		t.Fatalf("expected ~24h verification window, got %v", window)
	}

	if err := svc.VerifyAccount(context.Background(), user.ID, sender.verifyCode); err != nil {
		t.Fatalf("verify account: %v", err)
	}

	stored, _ = repo.GetByID(context.Background(), user.ID)
	if !stored.IsVerified {
		t.Fatalf("expected account to be verified")
	}
	if stored.VerifyOtp != "" || stored.VerifyOtpExpiresAt != nil {
		t.Fatalf("expected otp channel cleared after consumption")
	}

	// El código ya fue consumido: un segundo intento debe fallar.
	if err := svc.VerifyAccount(context.Background(), user.ID, sender.verifyCode); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid on second consumption, got %v", err)
	}

	if err := svc.SendVerifyOTP(context.Background(), user.ID); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestVerifyOTPExpiredCodeIsNotCleared(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	user, _ := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")
	if err := svc.SendVerifyOTP(context.Background(), user.ID); err != nil {
		t.Fatalf("send verify otp: %v", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if err := repo.UpdateVerifyOTP(context.Background(), user.ID, sender.verifyCode, past); err != nil {
		t.Fatalf("force expiry: %v", err)
	}

	if err := svc.VerifyAccount(context.Background(), user.ID, sender.verifyCode); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), user.ID)
	if stored.VerifyOtp == "" {
		t.Fatalf("expired code must remain in place until overwritten")
	}
	if stored.IsVerified {
		t.Fatalf("expired code must not verify the account")
	}
}

func TestVerifyOTPPriorCodeIsOverwritten(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	user, _ := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")

	if err := svc.SendVerifyOTP(context.Background(), user.ID); err != nil {
		t.Fatalf("send verify otp: %v", err)
	}
	firstCode := sender.verifyCode

	if err := svc.SendVerifyOTP(context.Background(), user.ID); err != nil {
		t.Fatalf("send verify otp again: %v", err)
	}
	secondCode := sender.verifyCode

	// Los códigos no se acumulan: el anterior ya no sirve.
	if firstCode != secondCode {
		if err := svc.VerifyAccount(context.Background(), user.ID, firstCode); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("expected overwritten code to be rejected, got %v", err)
		}
	}
	if err := svc.VerifyAccount(context.Background(), user.ID, secondCode); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
}

func TestVerifyOTPNoCodePending(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	user, _ := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")
	if err := svc.VerifyAccount(context.Background(), user.ID, "123456"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid with no code pending, got %v", err)
	}
	if err := svc.VerifyAccount(context.Background(), "missing", "123456"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResetOTPFlow(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	user, _ := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")

	if err := svc.SendResetOTP(context.Background(), "nobody@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown email, got %v", err)
	}

	if err := svc.SendResetOTP(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("send reset otp: %v", err)
	}
	if sender.resetCode == "" {
		t.Fatalf("expected reset otp email to be sent")
	}

	stored, _ := repo.GetByID(context.Background(), user.ID)
	window := time.Until(*stored.ResetOtpExpiresAt)
	if window < 14*time.Minute || window > 16*time.Minute {
		t.Fatalf("expected ~15m reset window, got %v", window)
	}

	if err := svc.VerifyResetOTP(context.Background(), "a@x.com", "000000"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid for wrong code, got %v", err)
	}
	if err := svc.VerifyResetOTP(context.Background(), "a@x.com", sender.resetCode); err != nil {
		t.Fatalf("verify reset otp: %v", err)
	}

	// Verificar el código no lo consume: el canal se limpia recién al
	// confirmar la contraseña nueva.
	stored, _ = repo.GetByID(context.Background(), user.ID)
	if stored.ResetOtp == "" {
		t.Fatalf("reset code must survive verification")
	}

	if err := svc.ResetPassword(context.Background(), "a@x.com", "newsecret"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	stored, _ = repo.GetByID(context.Background(), user.ID)
	if stored.ResetOtp != "" || stored.ResetOtpExpiresAt != nil {
		t.Fatalf("reset channel must be cleared at commit")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newsecret")); err != nil {
		t.Fatalf("expected new password to be stored")
	}

	if _, err := svc.Authenticate(context.Background(), "a@x.com", "newsecret"); err != nil {
		t.Fatalf("expected login with new password, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "a@x.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
}

func TestResetOTPExpiredCodeIsNotCleared(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := newTestService(repo, sender)

	user, _ := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")
	if err := svc.SendResetOTP(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("send reset otp: %v", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if err := repo.UpdateResetOTP(context.Background(), user.ID, sender.resetCode, past); err != nil {
		t.Fatalf("force expiry: %v", err)
	}

	if err := svc.VerifyResetOTP(context.Background(), "a@x.com", sender.resetCode); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), user.ID)
	if stored.ResetOtp == "" {
		t.Fatalf("expired reset code must remain in place until overwritten")
	}
}

func TestSendOTPRateLimited(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	svc := NewUserService(zap.NewNop(), repo, sender, &mockLimiter{allow: false})

	user, _ := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")

	if err := svc.SendVerifyOTP(context.Background(), user.ID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := svc.SendResetOTP(context.Background(), "a@x.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSendOTPEmailFailure(t *testing.T) {
	repo := newMockUserRepo()
	sender := &mockEmailSender{verifyErr: errors.New("smtp down"), resetErr: errors.New("smtp down")}
	svc := newTestService(repo, sender)

	user, _ := svc.Register(context.Background(), "Alice", "a@x.com", "secret1")

	if err := svc.SendVerifyOTP(context.Background(), user.ID); !errors.Is(err, ErrEmailSendFailure) {
		t.Fatalf("expected ErrEmailSendFailure, got %v", err)
	}
	if err := svc.SendResetOTP(context.Background(), "a@x.com"); !errors.Is(err, ErrEmailSendFailure) {
		t.Fatalf("expected ErrEmailSendFailure, got %v", err)
	}
}

func TestGenerateOTPCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOTPCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6-digit code, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("expected numeric code, got %q", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d out of range", n)
		}
	}
}
