package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/wichananm65/referral-tracker/internal/metrics"
	"github.com/wichananm65/referral-tracker/internal/user"
)

const (
	flightKey      = "top"
	computeTimeout = 5 * time.Second
)

// Source lists users with at least one given referral. Order is not relied on.
type Source interface {
	ListReferrers(ctx context.Context) ([]user.User, error)
}

// Cache stores the last computed Result under a generation counter.
// Get returns nil on a miss. Invalidate bumps the generation, and Set stores
// r only if the generation still equals gen.
type Cache interface {
	Get(ctx context.Context) (*Result, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, gen int64, r Result) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	source Source
	cache  Cache
	log    logrus.FieldLogger
	sf     singleflight.Group
}

// NewService creates a Service. If cache is nil, caching is disabled.
func NewService(source Source, cache Cache, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{source: source, cache: cache, log: log}
}

// TopReferrer returns the user with the most given referrals. found is false
// when there is no user with a non-zero count.
//
// Concurrent callers share one store scan. The scan does not inherit any
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (s *Service) TopReferrer(ctx context.Context) (Standing, bool, error) {
	if s.cache == nil {
		r, err := s.compute(ctx)
		return r.Standing, r.Found, err
	}

	ch := s.sf.DoChan(flightKey, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		return s.cachedCompute(flightCtx)
	})

	select {
	case <-ctx.Done():
		return Standing{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Standing{}, false, res.Err
		}
		r := res.Val.(Result)
		return r.Standing, r.Found, nil
	}
}

func (s *Service) cachedCompute(ctx context.Context) (Result, error) {
	cached, err := s.cache.Get(ctx)
	switch {
	case err != nil:
		s.log.WithError(err).Warn("leaderboard cache read failed")
	case cached != nil:
		metrics.RecordCacheLookup(true)
		return *cached, nil
	}
	metrics.RecordCacheLookup(false)

	// The generation is read before the scan so that an invalidation racing
	// with the scan makes the write below a no-op.
	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.log.WithError(genErr).Warn("leaderboard cache generation read failed")
	}

	r, err := s.compute(ctx)
	if err != nil {
		return Result{}, err
	}
	if genErr == nil {
		if err := s.cache.Set(ctx, gen, r); err != nil {
			s.log.WithError(err).Warn("leaderboard cache write failed")
		}
	}
	return r, nil
}

// Invalidate drops the cached result. It satisfies user.Invalidator.
func (s *Service) Invalidate(ctx context.Context) error {
	// Callers arriving after this point must not join a scan that started
	// before the change.
	s.sf.Forget(flightKey)
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

func (s *Service) compute(ctx context.Context) (Result, error) {
	users, err := s.source.ListReferrers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list referrers: %w", err)
	}
	standing, found := Top(users)
	return Result{Standing: standing, Found: found}, nil
}
