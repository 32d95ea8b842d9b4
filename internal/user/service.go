package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/logger"
	"github.com/wichananm65/referral-tracker/internal/metrics"
	"github.com/wichananm65/referral-tracker/internal/referralcode"
)

// RegisterInput carries the fields a new user supplies at registration.
type RegisterInput struct {
	FirstName  string  `json:"first_name" validate:"required,notblank"`
	LastName   string  `json:"last_name" validate:"required,notblank"`
	Email      string  `json:"email" validate:"required,email_grammar"`
	ReferredBy *string `json:"referred_by,omitempty"`
}

// Invalidator drops aggregates derived from referral lists.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service is the referral ledger.
type Service struct {
	repo        Repository
	codes       referralcode.Generator
	validate    *validator.Validate
	now         func() time.Time
	invalidator Invalidator
	log         logrus.FieldLogger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(repo Repository, codes referralcode.Generator, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		codes:    codes,
		validate: newValidator(),
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the input, links the referral when a code is supplied
// and inserts the new user.
//
// A code that matches nobody does not stop the registration: the user is
// returned together with a KindReferralNotFound entry in partial. On failure
// no user is created and err is an Errors value.
//
// The referral append and the insert are separate writes. When the store
// implements Transactor both run in one transaction; otherwise a failed
// insert leaves the append in place.
func (s *Service) Register(ctx context.Context, in RegisterInput) (created User, partial Errors, err error) {
	if errs := validateInput(s.validate, in); len(errs) > 0 {
		metrics.RecordRegistration(KindValidation.String())
		return User{}, nil, errs
	}

	code, err := s.codes.Generate()
	if err != nil {
		metrics.RecordRegistration(KindStorage.String())
		return User{}, nil, Errors{storageError(err)}
	}

	referredBy := normalizeCode(in.ReferredBy)
	candidate := User{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          in.Email,
		CreatedAt:      s.now().UTC().Truncate(time.Microsecond),
		ReferralCode:   code,
		ReferredBy:     referredBy,
		GivenReferrals: []string{},
	}

	linked := false
	write := func(repo Repository) error {
		partial, linked = nil, false

		if referredBy != nil {
			err := repo.AppendReferral(ctx, *referredBy, in.Email)
			switch {
			case err == nil:
				linked = true
			case errors.Is(err, ErrNotFound):
				partial = append(partial, &Error{
					Kind:    KindReferralNotFound,
					Field:   "referred_by",
					Message: "Code not found",
				})
			default:
				return storageError(err)
			}
		}

		u, err := repo.Create(ctx, candidate)
		if err != nil {
			if errors.Is(err, ErrEmailExists) {
				return &Error{Kind: KindDuplicateEmail, Field: "email", Message: "Email already in use", Err: err}
			}
			return storageError(err)
		}
		created = u
		return nil
	}

	if tx, ok := s.repo.(Transactor); ok {
		err = tx.WithinTx(ctx, write)
	} else {
		err = write(s.repo)
	}
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = storageError(err)
		}
		metrics.RecordRegistration(e.Kind.String())
		return User{}, nil, Errors{e}
	}

	if referredBy != nil {
		metrics.RecordReferral(linked)
	}
	if linked {
		s.log.WithFields(logrus.Fields{
			"referral_code": *referredBy,
			"email":         logger.RedactEmail(in.Email),
		}).Debug("referral linked")
		s.invalidate(ctx)
	}
	metrics.RecordRegistration("created")
	return created, partial, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListEmails returns all emails, most recent account first.
func (s *Service) ListEmails(ctx context.Context) ([]string, error) {
	emails, err := s.repo.ListEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return emails, nil
}

// CodeExists is advisory; registration never depends on it.
func (s *Service) CodeExists(ctx context.Context, code string) (bool, error) {
	if !referralcode.Valid(code) {
		return false, nil
	}
	return s.repo.CodeExists(ctx, code)
}

// EmailExists is advisory: two concurrent registrations are settled by the
// store's unique constraint, not by this check.
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	return s.repo.EmailExists(ctx, email)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("leaderboard cache invalidation failed")
	}
}

func normalizeCode(code *string) *string {
	if code == nil || strings.TrimSpace(*code) == "" {
		return nil
	}
	c := *code
	return &c
}
