//go:build integration

package window_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"covercheck/internal/admission/store/window"
	"covercheck/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *window.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = window.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestAllow() {
	ctx := context.Background()

	s.Run("admits up to the limit then denies", func() {
		for i := range 10 {
			result, err := s.store.Allow(ctx, "key:limit", 10, time.Minute)
			s.Require().NoError(err)
			s.True(result.Allowed, "request %d should be admitted", i+1)
			s.Equal(10-i-1, result.Remaining)
		}

		result, err := s.store.Allow(ctx, "key:limit", 10, time.Minute)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.False(result.ResetAt.IsZero())
	})

	s.Run("keys are independent", func() {
		for range 10 {
			_, err := s.store.Allow(ctx, "key:a", 10, time.Minute)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(ctx, "key:b", 10, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("entries slide out after the window", func() {
		_, err := s.store.Allow(ctx, "key:slide", 2, 300*time.Millisecond)
		s.Require().NoError(err)
		_, err = s.store.Allow(ctx, "key:slide", 2, 300*time.Millisecond)
		s.Require().NoError(err)

		result, err := s.store.Allow(ctx, "key:slide", 2, 300*time.Millisecond)
		s.Require().NoError(err)
		s.Require().False(result.Allowed)

		time.Sleep(400 * time.Millisecond)

		result, err = s.store.Allow(ctx, "key:slide", 2, 300*time.Millisecond)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *RedisStoreSuite) TestReset() {
	ctx := context.Background()

	for range 5 {
		_, err := s.store.Allow(ctx, "key:reset", 5, time.Minute)
		s.Require().NoError(err)
	}
	result, err := s.store.Allow(ctx, "key:reset", 5, time.Minute)
	s.Require().NoError(err)
	s.Require().False(result.Allowed)

	s.Require().NoError(s.store.Reset(ctx, "key:reset"))

	result, err = s.store.Allow(ctx, "key:reset", 5, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

// The script runs remove-count-insert server-side; concurrent callers can
// never over-admit past the budget.
func (s *RedisStoreSuite) TestConcurrentAllow() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var admitted atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(ctx, "key:race", 10, time.Minute)
			if err == nil && result.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(10), admitted.Load())
}
