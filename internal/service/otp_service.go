package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/smsauth/smsauth/internal/config"
	"github.com/smsauth/smsauth/internal/phone"
	"github.com/smsauth/smsauth/internal/store"
)

// Sender delivers a verification code to a phone number.
type Sender interface {
	SendCode(ctx context.Context, phoneNumber, code string) error
}

// CredentialIssuer returns a signed session credential for a verified
// phone number.
type CredentialIssuer interface {
	Issue(phoneNumber string) (string, error)
}

// OTPService drives the verification-code lifecycle: issue a code under a
// resend cooldown, deliver it, and verify it under an attempt budget. All
// per-phone state lives in the store; the service itself is stateless and
// safe for concurrent use.
type OTPService struct {
	store  *store.Store
	sender Sender
	issuer CredentialIssuer
	cfg    *config.OTPConfig
	logger *logrus.Logger
}

func NewOTPService(
	st *store.Store,
	sender Sender,
	issuer CredentialIssuer,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *OTPService {
	return &OTPService{
		store:  st,
		sender: sender,
		issuer: issuer,
		cfg:    cfg,
		logger: logger,
	}
}

// Send issues a fresh verification code for rawPhone and hands it to the
// SMS sender. A new code supersedes any live one and resets the attempt
// budget. When delivery fails the code is left in place: the message may
// still reach the handset, and the caller may retry after the cooldown.
func (s *OTPService) Send(ctx context.Context, rawPhone string) error {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return ErrInvalidPhone
	}

	acquired, err := s.store.TryAcquireResend(ctx, phoneNumber, s.cfg.ResendCooldown)
	if err != nil {
		return fmt.Errorf("failed to acquire resend marker: %w", err)
	}
	if !acquired {
		return ErrResendThrottled
	}

	code, err := generateCode()
	if err != nil {
		return err
	}

	if err := s.store.SetCode(ctx, phoneNumber, code, s.cfg.CodeTTL); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	if err := s.sender.SendCode(ctx, phoneNumber, code); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to deliver verification code")
		return ErrDeliveryFailed.wrap(err)
	}

	s.logger.WithField("phone", phoneNumber).Info("Verification code sent")
	return nil
}

// Verify checks suppliedCode against the live code for rawPhone and, on
// success, returns a signed credential along with the canonical phone
// number. A successful verification consumes the code; once the attempt
// budget is spent the code is unusable until it expires naturally.
func (s *OTPService) Verify(ctx context.Context, rawPhone, suppliedCode string) (string, string, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return "", "", ErrInvalidPhone
	}

	_, remaining, err := s.store.GetCode(ctx, phoneNumber)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", ErrCodeExpired
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read code: %w", err)
	}

	attempts, err := s.store.GetAttempts(ctx, phoneNumber)
	if err != nil {
		return "", "", fmt.Errorf("failed to read attempts: %w", err)
	}
	if attempts >= s.cfg.MaxAttempts {
		return "", "", ErrTooManyAttempts
	}

	// ConsumeCode is an atomic compare-then-delete, so at most one of any
	// number of concurrent callers can succeed for a given code.
	ok, err := s.store.ConsumeCode(ctx, phoneNumber, suppliedCode)
	if err != nil {
		return "", "", fmt.Errorf("failed to check code: %w", err)
	}
	if !ok {
		if _, err := s.store.IncrementAttempts(ctx, phoneNumber, remaining); err != nil {
			s.logger.WithError(err).WithField("phone", phoneNumber).Warn("Failed to record verification attempt")
		}
		return "", "", ErrInvalidCode
	}

	token, err := s.issuer.Issue(phoneNumber)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue credential: %w", err)
	}

	s.logger.WithField("phone", phoneNumber).Info("Phone number verified")
	return token, phoneNumber, nil
}
