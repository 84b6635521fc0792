//go:build integration

package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/leads/idempotency"
	"crmhub/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *idempotency.RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = idempotency.NewRedisStore(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.redis.Flush(s.T())
}

func (s *RedisStoreSuite) TestClaimIsExclusive() {
	key := idempotency.Key("int-1", "delivery-1", nil)

	ok, err := s.store.Claim(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.Claim(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.False(ok, "second delivery is a duplicate")

	ttl, err := s.redis.Client.TTL(s.ctx, key).Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}

func (s *RedisStoreSuite) TestReleaseAllowsRetry() {
	key := idempotency.Key("int-1", "", []byte(`{"email":"a@example.com"}`))

	ok, err := s.store.Claim(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.store.Release(s.ctx, key))

	ok, err = s.store.Claim(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisStoreSuite) TestClaimExpires() {
	key := idempotency.Key("int-1", "short-lived", nil)

	ok, err := s.store.Claim(s.ctx, key, 200*time.Millisecond)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Eventually(func() bool {
		ok, err := s.store.Claim(s.ctx, key, time.Minute)
		return err == nil && ok
	}, 3*time.Second, 50*time.Millisecond)
}
