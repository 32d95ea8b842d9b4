package user

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository is the user record store.
type Repository interface {
	List(ctx context.Context) ([]User, error)
	// ListEmails returns every email, most recently created first.
	ListEmails(ctx context.Context) ([]string, error)
	// ListReferrers returns users with at least one given referral, in no
	// particular order.
	ListReferrers(ctx context.Context) ([]User, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// AppendReferral atomically pushes email onto the given_referrals of the
	// user owning code. It returns ErrNotFound when no user has that code.
	AppendReferral(ctx context.Context, code, email string) error
	// Create inserts u and returns it with its store-assigned ID. It returns
	// ErrEmailExists or ErrCodeExists on unique constraint violations.
	Create(ctx context.Context, u User) (User, error)
	Ping(ctx context.Context) error
}

// Transactor is implemented by stores able to run several writes atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
}

// InMemoryRepository keeps users in insertion order. Used by tests and the
// sandbox server.
type InMemoryRepository struct {
	mu      sync.RWMutex
	users   []User
	byEmail map[string]int
	byCode  map[string]int
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository(seed []User) *InMemoryRepository {
	repo := &InMemoryRepository{
		users:   make([]User, 0, len(seed)),
		byEmail: make(map[string]int, len(seed)),
		byCode:  make(map[string]int, len(seed)),
	}

	for _, u := range seed {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if u.GivenReferrals == nil {
			u.GivenReferrals = []string{}
		}
		repo.byEmail[u.Email] = len(repo.users)
		repo.byCode[u.ReferralCode] = len(repo.users)
		repo.users = append(repo.users, u.clone())
	}

	return repo
}

func (r *InMemoryRepository) List(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u.clone())
	}
	return users, nil
}

func (r *InMemoryRepository) ListEmails(ctx context.Context) ([]string, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	return emails, nil
}

func (r *InMemoryRepository) ListReferrers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]User, 0)
	for _, u := range r.users {
		if len(u.GivenReferrals) > 0 {
			out = append(out, u.clone())
		}
	}
	return out, nil
}

func (r *InMemoryRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byCode[code]
	return ok, nil
}

func (r *InMemoryRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmail[email]
	return ok, nil
}

// GetByCode is a test helper; the ledger never reads before it appends.
func (r *InMemoryRepository) GetByCode(code string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byCode[code]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.users[i].clone(), nil
}

func (r *InMemoryRepository) AppendReferral(ctx context.Context, code, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byCode[code]
	if !ok {
		return ErrNotFound
	}
	r.users[i].GivenReferrals = append(r.users[i].GivenReferrals, email)
	return nil
}

func (r *InMemoryRepository) Create(ctx context.Context, u User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[u.Email]; ok {
		return User{}, ErrEmailExists
	}
	if _, ok := r.byCode[u.ReferralCode]; ok {
		return User{}, ErrCodeExists
	}

	u = u.clone()
	u.ID = uuid.NewString()
	r.byEmail[u.Email] = len(r.users)
	r.byCode[u.ReferralCode] = len(r.users)
	r.users = append(r.users, u)
	return u.clone(), nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
