package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BrevoSender envía correos usando la API transaccional de Brevo.
type BrevoSender struct {
	baseURL  string
	apiKey   string
	from     string
	fromName string
	client   *http.Client
}

// NewBrevoSender construye un cliente apuntando a la API de Brevo.
func NewBrevoSender(baseURL, apiKey, from, fromName string) (*BrevoSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("brevo api key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("sender email is required")
	}
	if baseURL == "" {
		baseURL = "https://api.brevo.com/v3"
	}
	return &BrevoSender{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		from:     from,
		fromName: fromName,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *BrevoSender) SendWelcome(ctx context.Context, toEmail string) error {
	body := renderTemplate(welcomeTextTemplate, toEmail, "")
	return s.send(ctx, toEmail, welcomeSubject, body, "")
}

func (s *BrevoSender) SendVerificationOTP(ctx context.Context, toEmail string, code string) error {
	body := renderTemplate(verifyHTMLTemplate, toEmail, code)
	return s.send(ctx, toEmail, verifySubject, "", body)
}

func (s *BrevoSender) SendPasswordResetOTP(ctx context.Context, toEmail string, code string) error {
	body := renderTemplate(resetHTMLTemplate, toEmail, code)
	return s.send(ctx, toEmail, resetSubject, "", body)
}

func (s *BrevoSender) send(ctx context.Context, toEmail, subject, textContent, htmlContent string) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	reqBody := brevoRequest{
		Sender:      brevoParty{Email: s.from, Name: s.fromName},
		To:          []brevoParty{{Email: toEmail}},
		Subject:     subject,
		TextContent: textContent,
		HTMLContent: htmlContent,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/smtp/email", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var be brevoError
		if err := json.Unmarshal(respBody, &be); err == nil && be.Message != "" {
			return fmt.Errorf("brevo api error: %s", be.Message)
		}
		return fmt.Errorf("brevo http error: status=%d", resp.StatusCode)
	}
	return nil
}

type brevoRequest struct {
	Sender      brevoParty   `json:"sender"`
	To          []brevoParty `json:"to"`
	Subject     string       `json:"subject"`
	TextContent string       `json:"textContent,omitempty"`
	HTMLContent string       `json:"htmlContent,omitempty"`
}

type brevoParty struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
