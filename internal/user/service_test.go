package user

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wichananm65/referral-tracker/internal/referralcode"
)

// sequenceCodes hands out codes in order, then falls back to random ones.
type sequenceCodes struct {
	mu    sync.Mutex
	codes []string
}

func (s *sequenceCodes) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		g, _ := referralcode.NewRandom(8)
		return g.Generate()
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return code, nil
}

type failingCodes struct{}

func (failingCodes) Generate() (string, error) { return "", errors.New("entropy exhausted") }

// stepClock advances one minute on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Minute)
		return now
	}
}

type recordingInvalidator struct {
	calls int
}

func (r *recordingInvalidator) Invalidate(ctx context.Context) error {
	r.calls++
	return nil
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(repo Repository, codes ...string) *Service {
	return NewService(repo, &sequenceCodes{codes: codes},
		WithClock(stepClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))),
		WithLogger(discardLogger()),
	)
}

func strPtr(s string) *string { return &s }

func TestRegister_CreatesUserWithoutReferral(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))

	u, partial, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(partial) != 0 {
		t.Fatalf("expected no partial errors, got %v", partial)
	}
	if u.ID == "" {
		t.Fatalf("expected store-assigned id")
	}
	if u.ReferredBy != nil {
		t.Fatalf("expected nil referred_by, got %q", *u.ReferredBy)
	}
	if u.GivenReferrals == nil || len(u.GivenReferrals) != 0 {
		t.Fatalf("expected empty non-nil given_referrals, got %#v", u.GivenReferrals)
	}
	if !referralcode.Valid(u.ReferralCode) {
		t.Fatalf("invalid referral code %q", u.ReferralCode)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	in := RegisterInput{FirstName: "A", LastName: "B", Email: "dup@example.com"}

	if _, _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	_, _, err := svc.Register(context.Background(), in)
	if kind, ok := KindOf(err); !ok || kind != KindDuplicateEmail {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	users, _ := svc.List(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected exactly one user, got %d", len(users))
	}
}

func TestRegister_AppendsReferralInOrder(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	inv := &recordingInvalidator{}
	svc := NewService(repo, &sequenceCodes{codes: []string{"ABC123"}},
		WithLogger(discardLogger()),
		WithInvalidator(inv),
	)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "A", Email: "a@example.com"}); err != nil {
		t.Fatalf("register A failed: %v", err)
	}
	for _, email := range []string{"b@example.com", "c@example.com"} {
		u, partial, err := svc.Register(ctx, RegisterInput{FirstName: "X", LastName: "Y", Email: email, ReferredBy: strPtr("ABC123")})
		if err != nil || len(partial) != 0 {
			t.Fatalf("register %s failed: err=%v partial=%v", email, err, partial)
		}
		if u.ReferredBy == nil || *u.ReferredBy != "ABC123" {
			t.Fatalf("expected referred_by ABC123, got %v", u.ReferredBy)
		}
	}

	a, err := repo.GetByCode("ABC123")
	if err != nil {
		t.Fatalf("referrer lookup failed: %v", err)
	}
	want := []string{"b@example.com", "c@example.com"}
	if !reflect.DeepEqual(a.GivenReferrals, want) {
		t.Fatalf("expected %v, got %v", want, a.GivenReferrals)
	}
	if inv.calls != 2 {
		t.Fatalf("expected cache invalidated per linked referral, got %d", inv.calls)
	}
}

func TestRegister_UnknownReferralStillCreates(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	u, partial, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "A", LastName: "B", Email: "new@example.com", ReferredBy: strPtr("NOPE99"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID == "" {
		t.Fatalf("expected user to be created")
	}
	if !partial.Has(KindReferralNotFound) || partial[0].Field != "referred_by" {
		t.Fatalf("expected referral not found partial error, got %v", partial)
	}
	if u.ReferredBy == nil || *u.ReferredBy != "NOPE99" {
		t.Fatalf("expected supplied code kept as referred_by")
	}
}

func TestRegister_BlankReferralIsIgnored(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))

	u, partial, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "A", LastName: "B", Email: "a@example.com", ReferredBy: strPtr("  "),
	})
	if err != nil || len(partial) != 0 {
		t.Fatalf("unexpected errors: err=%v partial=%v", err, partial)
	}
	if u.ReferredBy != nil {
		t.Fatalf("expected blank referral to be treated as absent")
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	_, _, err := svc.Register(context.Background(), RegisterInput{
		FirstName: " ", LastName: "", Email: "not-an-email",
	})
	var errs Errors
	if !errors.As(err, &errs) {
		t.Fatalf("expected Errors, got %v", err)
	}
	fields := map[string]string{}
	for _, e := range errs {
		if e.Kind != KindValidation {
			t.Fatalf("expected validation kind, got %v", e.Kind)
		}
		fields[e.Field] = e.Message
	}
	if fields["first_name"] != "Please enter a first name" {
		t.Fatalf("unexpected first_name message: %q", fields["first_name"])
	}
	if _, ok := fields["last_name"]; !ok {
		t.Fatalf("expected last_name error")
	}
	if fields["email"] != "Please enter a valid email format" {
		t.Fatalf("unexpected email message: %q", fields["email"])
	}

	users, _ := repo.List(context.Background())
	if len(users) != 0 {
		t.Fatalf("validation failure must not write, found %d users", len(users))
	}
}

func TestRegister_GeneratorFailureIsStorage(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil), failingCodes{}, WithLogger(discardLogger()))

	_, _, err := svc.Register(context.Background(), RegisterInput{FirstName: "A", LastName: "B", Email: "a@example.com"})
	if kind, ok := KindOf(err); !ok || kind != KindStorage {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestRegister_CodeCollisionIsStorage(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil), "SAME01", "SAME01")
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@example.com"}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	_, _, err := svc.Register(ctx, RegisterInput{FirstName: "C", LastName: "D", Email: "c@example.com"})
	if kind, ok := KindOf(err); !ok || kind != KindStorage {
		t.Fatalf("expected storage error on code collision, got %v", err)
	}
	if !errors.Is(err.(Errors)[0], ErrCodeExists) {
		t.Fatalf("expected ErrCodeExists in chain, got %v", err)
	}
}

func TestListEmails_NewestFirst(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	ctx := context.Background()

	for _, email := range []string{"t1@example.com", "t2@example.com", "t3@example.com"} {
		if _, _, err := svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: email}); err != nil {
			t.Fatalf("register %s failed: %v", email, err)
		}
	}

	emails, err := svc.ListEmails(ctx)
	if err != nil {
		t.Fatalf("list emails failed: %v", err)
	}
	want := []string{"t3@example.com", "t2@example.com", "t1@example.com"}
	if !reflect.DeepEqual(emails, want) {
		t.Fatalf("expected %v, got %v", want, emails)
	}
}

func TestList_RoundTrip(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	ctx := context.Background()

	created, _, err := svc.Register(ctx, RegisterInput{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}
	if !reflect.DeepEqual(users[0], created) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", users[0], created)
	}
}

func TestExistenceChecks(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil), "CODE42")
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@example.com"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	cases := []struct {
		name string
		fn   func() (bool, error)
		want bool
	}{
		{"known code", func() (bool, error) { return svc.CodeExists(ctx, "CODE42") }, true},
		{"unknown code", func() (bool, error) { return svc.CodeExists(ctx, "CODE43") }, false},
		{"empty code", func() (bool, error) { return svc.CodeExists(ctx, "") }, false},
		{"known email", func() (bool, error) { return svc.EmailExists(ctx, "a@example.com") }, true},
		{"unknown email", func() (bool, error) { return svc.EmailExists(ctx, "b@example.com") }, false},
	}
	for _, tc := range cases {
		got, err := tc.fn()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRegister_CanceledContext(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@example.com"})
	if kind, ok := KindOf(err); !ok || kind != KindStorage {
		t.Fatalf("expected storage error for canceled context, got %v", err)
	}
}

func TestRegister_ConcurrentReferrals(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo, "HUB001")
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{FirstName: "Hub", LastName: "User", Email: "hub@example.com"}); err != nil {
		t.Fatalf("register hub failed: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@example.com"
			if _, _, err := svc.Register(ctx, RegisterInput{FirstName: "F", LastName: "L", Email: email, ReferredBy: strPtr("HUB001")}); err != nil {
				t.Errorf("register %s failed: %v", email, err)
			}
		}(i)
	}
	wg.Wait()

	hub, err := repo.GetByCode("HUB001")
	if err != nil {
		t.Fatalf("hub lookup failed: %v", err)
	}
	if hub.ReferralCount() != n {
		t.Fatalf("expected %d referrals, got %d", n, hub.ReferralCount())
	}
}

func TestRegister_CreatedAtMatchesStoredPrecision(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 123456789, time.FixedZone("ICT", 7*3600))
	svc := NewService(NewInMemoryRepository(nil), &sequenceCodes{},
		WithClock(func() time.Time { return at }),
		WithLogger(discardLogger()),
	)

	u, _, err := svc.Register(context.Background(), RegisterInput{FirstName: "A", LastName: "B", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	want := time.Date(2024, 5, 1, 2, 0, 0, 123456000, time.UTC)
	if !u.CreatedAt.Equal(want) || u.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected %v truncated to microseconds in UTC, got %v", want, u.CreatedAt)
	}
}
