package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrTOTPNotEnrolled    = errors.New("totp not enrolled")
)

// AccountTOTPService manages the TOTP second factor for platform accounts.
// Enrolment is two-step: EnrollTOTP stores a pending secret, VerifyTOTP
// proves possession and switches it on.
type AccountTOTPService struct {
	Store  store.Store
	Issuer string // issuer name shown in authenticator apps
}

type TOTPEnrollment struct {
	Secret  string `json:"secret"`
	URL     string `json:"url"` // otpauth:// URL for QR rendering
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// EnrollTOTP generates and stores a pending TOTP secret for the account.
// The factor is not active until VerifyTOTP succeeds.
func (s *AccountTOTPService) EnrollTOTP(ctx context.Context, accountID string) (TOTPEnrollment, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	if account.TOTPEnabled != nil {
		return TOTPEnrollment{}, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Accounts().UpdateTOTPSecret(ctx, accountID, key.Secret()); err != nil {
		return TOTPEnrollment{}, err
	}

	return TOTPEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: account.Email,
	}, nil
}

// VerifyTOTP checks a code against the pending secret and enables the
// factor.
func (s *AccountTOTPService) VerifyTOTP(ctx context.Context, accountID, code string) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TOTPSecret == nil || *account.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	if account.TOTPEnabled != nil {
		return ErrTOTPAlreadyEnabled
	}

	if !totp.Validate(code, *account.TOTPSecret) {
		return ErrInvalidOTP
	}
	return s.Store.Accounts().EnableTOTP(ctx, accountID)
}

// DisableTOTP removes the factor. Requires a currently valid code so a
// stolen session cannot silently weaken the account.
func (s *AccountTOTPService) DisableTOTP(ctx context.Context, accountID, code string) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TOTPSecret == nil || account.TOTPEnabled == nil {
		return ErrTOTPNotEnrolled
	}
	if !totp.Validate(code, *account.TOTPSecret) {
		return ErrInvalidOTP
	}
	return s.Store.Accounts().DisableTOTP(ctx, accountID)
}
