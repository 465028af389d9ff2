package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/gatekeeper/logger"
)

type snapshot struct {
	Roles []string `json:"roles"`
	Level int      `json:"level"`
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// MemoryCacheTestSuite 内存缓存测试套件.
type MemoryCacheTestSuite struct {
	suite.Suite
	clock *fakeClock
	cache Cache
	ctx   context.Context
}

func TestMemoryCacheSuite(t *testing.T) {
	suite.Run(t, new(MemoryCacheTestSuite))
}

func (s *MemoryCacheTestSuite) SetupTest() {
	s.clock = &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	c, err := NewMemoryCache(&Config{MaxSize: 3}, logger.NewNop(), WithClock(s.clock.now))
	s.Require().NoError(err)
	s.cache = c
	s.ctx = context.Background()
}

func (s *MemoryCacheTestSuite) TearDownTest() {
	s.NoError(s.cache.Close())
}

func (s *MemoryCacheTestSuite) TestSetGet() {
	s.Require().NoError(s.cache.Set(s.ctx, "k", "v", 0))
	v, err := s.cache.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal("v", v)
}

func (s *MemoryCacheTestSuite) TestSetStruct_JSON() {
	s.Require().NoError(s.cache.Set(s.ctx, "snap", snapshot{Roles: []string{"user"}, Level: 1}, time.Minute))
	v, err := s.cache.Get(s.ctx, "snap")
	s.Require().NoError(err)
	s.JSONEq(`{"roles":["user"],"level":1}`, v)
}

func (s *MemoryCacheTestSuite) TestSet_Unserializable() {
	s.ErrorIs(s.cache.Set(s.ctx, "ch", make(chan int), 0), ErrSerialize)
}

func (s *MemoryCacheTestSuite) TestGet_NotFound() {
	_, err := s.cache.Get(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryCacheTestSuite) TestExpiry() {
	s.Require().NoError(s.cache.Set(s.ctx, "revoked:s1", "1", 10*time.Minute))
	ok, err := s.cache.Exists(s.ctx, "revoked:s1")
	s.Require().NoError(err)
	s.True(ok)

	s.clock.advance(10 * time.Minute)
	ok, err = s.cache.Exists(s.ctx, "revoked:s1")
	s.Require().NoError(err)
	s.False(ok, "到期即失效")
	_, err = s.cache.Get(s.ctx, "revoked:s1")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryCacheTestSuite) TestTTL() {
	s.Require().NoError(s.cache.Set(s.ctx, "forever", "v", 0))
	s.Require().NoError(s.cache.Set(s.ctx, "timed", "v", time.Minute))
	s.clock.advance(15 * time.Second)

	ttl, _ := s.cache.TTL(s.ctx, "forever")
	s.Equal(NoExpiry, ttl)
	ttl, _ = s.cache.TTL(s.ctx, "missing")
	s.Equal(KeyMissing, ttl)
	ttl, _ = s.cache.TTL(s.ctx, "timed")
	s.Equal(45*time.Second, ttl)
}

func (s *MemoryCacheTestSuite) TestEvictsEarliestExpiryFirst() {
	s.Require().NoError(s.cache.Set(s.ctx, "forever", "v", 0))
	s.Require().NoError(s.cache.Set(s.ctx, "long", "v", time.Hour))
	s.Require().NoError(s.cache.Set(s.ctx, "short", "v", time.Minute))

	s.Require().NoError(s.cache.Set(s.ctx, "new", "v", time.Hour))
	s.Equal(3, s.cache.(*memoryCache).size())
	for k, want := range map[string]bool{"forever": true, "long": true, "short": false, "new": true} {
		ok, _ := s.cache.Exists(s.ctx, k)
		s.Equal(want, ok, k)
	}

	s.Require().NoError(s.cache.Set(s.ctx, "newer", "v", 2*time.Hour))
	ok, _ := s.cache.Exists(s.ctx, "forever")
	s.True(ok, "不过期的项最后淘汰")
}

func (s *MemoryCacheTestSuite) TestOverwriteDoesNotEvict() {
	for _, k := range []string{"a", "b", "c"} {
		s.Require().NoError(s.cache.Set(s.ctx, k, k, 0))
	}
	s.Require().NoError(s.cache.Set(s.ctx, "a", "A", 0))
	for _, k := range []string{"b", "c"} {
		ok, _ := s.cache.Exists(s.ctx, k)
		s.True(ok, k)
	}
}

func (s *MemoryCacheTestSuite) TestRemoveExpired() {
	s.Require().NoError(s.cache.Set(s.ctx, "a", "v", time.Minute))
	s.Require().NoError(s.cache.Set(s.ctx, "b", "v", 0))
	s.clock.advance(time.Minute)

	s.Equal(1, s.cache.(*memoryCache).removeExpired())
	s.Equal(1, s.cache.(*memoryCache).size())
}

func (s *MemoryCacheTestSuite) TestCloseTwice() {
	s.NoError(s.cache.Close())
	s.NoError(s.cache.Close())
}

// RedisCacheTestSuite Redis 缓存测试套件.
type RedisCacheTestSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache Cache
	ctx   context.Context
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheTestSuite))
}

func (s *RedisCacheTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	c, err := NewCache(&Config{Type: TypeRedis, Addr: s.mr.Addr()}, logger.NewNop())
	s.Require().NoError(err)
	s.cache = c
	s.ctx = context.Background()
}

func (s *RedisCacheTestSuite) TearDownTest() {
	s.NoError(s.cache.Close())
}

func (s *RedisCacheTestSuite) TestSetGet() {
	s.Require().NoError(s.cache.Set(s.ctx, "snap", snapshot{Level: 4}, time.Minute))
	v, err := s.cache.Get(s.ctx, "snap")
	s.Require().NoError(err)
	s.JSONEq(`{"roles":null,"level":4}`, v)
}

func (s *RedisCacheTestSuite) TestExpiry() {
	s.Require().NoError(s.cache.Set(s.ctx, "k", "v", 10*time.Minute))
	ttl, err := s.cache.TTL(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal(10*time.Minute, ttl)

	s.mr.FastForward(11 * time.Minute)
	_, err = s.cache.Get(s.ctx, "k")
	s.ErrorIs(err, ErrNotFound)
}

func (s *RedisCacheTestSuite) TestTTL_Conventions() {
	s.Require().NoError(s.cache.Set(s.ctx, "forever", "v", 0))
	ttl, err := s.cache.TTL(s.ctx, "forever")
	s.Require().NoError(err)
	s.Equal(NoExpiry, ttl)

	ttl, err = s.cache.TTL(s.ctx, "missing")
	s.Require().NoError(err)
	s.Equal(KeyMissing, ttl)
}

func (s *RedisCacheTestSuite) TestExistsAndKeyPrefix() {
	s.Require().NoError(s.cache.Set(s.ctx, "revoked:s1", "1", time.Hour))
	ok, err := s.cache.Exists(s.ctx, "revoked:s1")
	s.Require().NoError(err)
	s.True(ok)

	s.True(s.mr.Exists(DefaultKeyPrefix+"revoked:s1"), "键带前缀")
	s.False(s.mr.Exists("revoked:s1"))

	ok, err = s.cache.Exists(s.ctx, "revoked:s2")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisCacheTestSuite) TestPing() {
	s.NoError(s.cache.Ping(s.ctx))
}

// ConfigTestSuite 配置测试套件.
type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestValidate() {
	var nilCfg *Config
	s.ErrorIs(nilCfg.Validate(), ErrNilConfig)
	s.NoError((&Config{}).Validate())
	s.IsType(&ConfigError{}, (&Config{Type: "memcached"}).Validate())
	s.IsType(&ConfigError{}, (&Config{Type: TypeRedis}).Validate())
	s.NoError((&Config{Type: TypeRedis, Addr: "localhost:6379"}).Validate())
}

func (s *ConfigTestSuite) TestApplyDefaults() {
	c := &Config{}
	c.ApplyDefaults()
	s.Equal(TypeMemory, c.Type)
	s.Equal(DefaultKeyPrefix, c.KeyPrefix)
	s.Equal(DefaultPoolSize, c.PoolSize)
	s.Equal(DefaultMaxSize, c.MaxSize)
	s.Equal(DefaultCleanupInterval, c.CleanupInterval)
}

func (s *ConfigTestSuite) TestNewCache_Errors() {
	_, err := NewCache(&Config{}, nil)
	s.ErrorIs(err, ErrNilLogger)

	_, err = NewRedisCache(&Config{Type: TypeRedis}, logger.NewNop())
	s.ErrorIs(err, ErrEmptyAddr)

	_, err = NewCache(&Config{Type: TypeRedis, Addr: "127.0.0.1:1", Timeout: 100 * time.Millisecond}, logger.NewNop())
	s.Error(err)
}

func (s *ConfigTestSuite) TestNewCache_Memory() {
	c, err := NewCache(&Config{}, logger.NewNop())
	s.Require().NoError(err)
	s.NoError(c.Ping(context.Background()))
	s.NoError(c.Close())
}
