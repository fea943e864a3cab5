package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/raphaelgruber/pluisje-go/internal/mail"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
	"github.com/raphaelgruber/pluisje-go/internal/token"
)

// DefaultResetMaxAge is how long a password reset link stays valid.
const DefaultResetMaxAge = time.Hour

// AuthOptions configures an AuthService.
type AuthOptions struct {
	// Secret signs password reset tokens.
	Secret string
	// BaseURL is the public address used in mailed links, without trailing slash.
	BaseURL     string
	ResetMaxAge time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// AuthService handles registration, verification, login and password reset.
type AuthService struct {
	accounts store.Accounts
	mailer   mail.Sender
	reset    *token.Signer
	opts     AuthOptions
	logger   *slog.Logger
}

// RegisterResult reports a completed registration.
type RegisterResult struct {
	Account models.Account
	// MailErr is set when the verification mail could not be sent.
	// The account exists regardless.
	MailErr error
}

// NewAuthService creates an account service.
func NewAuthService(accounts store.Accounts, mailer mail.Sender, opts AuthOptions, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	if opts.ResetMaxAge <= 0 {
		opts.ResetMaxAge = DefaultResetMaxAge
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		accounts: accounts,
		mailer:   mailer,
		reset:    token.NewSigner(opts.Secret, "password-reset"),
		opts:     opts,
		logger:   log,
	}
}

// Register creates an unverified account and mails the verification link.
func (s *AuthService) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	email = models.NormalizeIdentity(email)
	verificationToken := uuid.NewString()

	acc, err := s.create(ctx, email, password, false, &verificationToken)
	if err != nil {
		return nil, err
	}

	res := &RegisterResult{Account: *acc}
	link := s.VerifyLink(email, verificationToken)
	if err := s.mailer.Send(ctx, mail.VerificationMessage(email, link)); err != nil {
		res.MailErr = err
		s.logger.Warn("verification mail failed", "email", email, "error", err)
	}
	s.logger.Info("account registered", "email", email)
	return res, nil
}

// CreateAccount adds an account without sending mail.
func (s *AuthService) CreateAccount(ctx context.Context, email, password string, verified bool) (*models.Account, error) {
	email = models.NormalizeIdentity(email)
	var tok *string
	if !verified {
		t := uuid.NewString()
		tok = &t
	}
	return s.create(ctx, email, password, verified, tok)
}

func (s *AuthService) create(ctx context.Context, email, password string, verified bool, verificationToken *string) (*models.Account, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	if _, err := s.accounts.GetAccount(ctx, email); err == nil {
		return nil, ErrDuplicateAccount
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc := models.Account{
		Email:             email,
		PasswordHash:      string(hash),
		Verified:          verified,
		VerificationToken: verificationToken,
		CreatedAt:         time.Now(),
	}
	if err := s.accounts.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &acc, nil
}

// VerifyLink builds the address mailed to a new account.
func (s *AuthService) VerifyLink(email, verificationToken string) string {
	q := url.Values{"email": {email}, "token": {verificationToken}}
	return s.opts.BaseURL + "/verify?" + q.Encode()
}

// Verify marks the account verified when email and token match.
// Returns ErrInvalidToken for a mismatch and ErrAlreadyVerified when there is nothing to do.
func (s *AuthService) Verify(ctx context.Context, email, verificationToken string) error {
	email = models.NormalizeIdentity(email)
	if email == "" || verificationToken == "" {
		return ErrInvalidToken
	}

	acc, err := s.accounts.FindAccountByToken(ctx, email, verificationToken)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if acc.Verified {
		return ErrAlreadyVerified
	}
	if err := s.accounts.MarkVerified(ctx, email); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	s.logger.Info("account verified", "email", email)
	return nil
}

// MarkVerified verifies an account without a token.
func (s *AuthService) MarkVerified(ctx context.Context, email string) error {
	email = models.NormalizeIdentity(email)
	if err := s.accounts.MarkVerified(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// Login checks credentials. Failures are reported in a fixed order:
// unknown account, unverified account, wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Account, error) {
	email = models.NormalizeIdentity(email)

	acc, err := s.accounts.GetAccount(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !acc.Verified {
		return nil, ErrAccountUnverified
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	return acc, nil
}

// ForgotPassword mails a reset link. Unknown addresses succeed silently so
// the response does not reveal which accounts exist. A returned error wrapping
// mail.ErrDelivery means the link was not sent.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = models.NormalizeIdentity(email)

	if _, err := s.accounts.GetAccount(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("password reset for unknown account", "email", email)
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	link := s.opts.BaseURL + "/reset-password/" + s.reset.Sign(email)
	if err := s.mailer.Send(ctx, mail.ResetMessage(email, link)); err != nil {
		return err
	}
	s.logger.Info("password reset mailed", "email", email)
	return nil
}

// CheckResetToken returns the identity a reset token was issued for.
func (s *AuthService) CheckResetToken(resetToken string) (string, error) {
	email, err := s.reset.Verify(resetToken, s.opts.ResetMaxAge)
	if err != nil {
		return "", ErrInvalidToken
	}
	return email, nil
}

// ResetPassword sets a new password for the token's account.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, password string) (string, error) {
	email, err := s.CheckResetToken(resetToken)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, email, string(hash)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("password reset", "email", email)
	return email, nil
}

// ListAccounts returns all accounts.
func (s *AuthService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accs, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accs, nil
}
