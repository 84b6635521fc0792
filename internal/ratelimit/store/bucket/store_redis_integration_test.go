//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/ratelimit/store/bucket"
	"crmhub/pkg/testutil/containers"
)

type RedisBucketSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
	ctx   context.Context
}

func TestRedisBucketSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketSuite))
}

func (s *RedisBucketSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedisBucketStore(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisBucketSuite) SetupTest() {
	s.redis.Flush(s.T())
}

func (s *RedisBucketSuite) TestRejectsOverLimit() {
	for i := range 3 {
		res, err := s.store.Allow(s.ctx, "rl:test", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
	}

	res, err := s.store.Allow(s.ctx, "rl:test", 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	s.Require().NoError(s.store.Reset(s.ctx, "rl:test"))
	res, err = s.store.Allow(s.ctx, "rl:test", 3, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisBucketSuite) TestWindowSlides() {
	res, err := s.store.Allow(s.ctx, "rl:slide", 1, 300*time.Millisecond)
	s.Require().NoError(err)
	s.Require().True(res.Allowed)

	s.Eventually(func() bool {
		res, err := s.store.Allow(s.ctx, "rl:slide", 1, 300*time.Millisecond)
		return err == nil && res.Allowed
	}, 3*time.Second, 50*time.Millisecond)
}

func (s *RedisBucketSuite) TestConcurrentCallersShareBudget() {
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(s.ctx, "rl:shared", 5, time.Minute)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(5), allowed.Load())
}
