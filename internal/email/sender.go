package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para el envío de correos transaccionales.
type Sender interface {
	SendWelcome(ctx context.Context, toEmail string) error
	SendVerificationOTP(ctx context.Context, toEmail string, code string) error
	SendPasswordResetOTP(ctx context.Context, toEmail string, code string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) fail() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendWelcome(_ context.Context, _ string) error {
	return s.fail()
}

func (s *disabledSender) SendVerificationOTP(_ context.Context, _ string, _ string) error {
	return s.fail()
}

func (s *disabledSender) SendPasswordResetOTP(_ context.Context, _ string, _ string) error {
	return s.fail()
}
