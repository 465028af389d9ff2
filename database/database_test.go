package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// DatabaseTestSuite 数据库测试套件.
type DatabaseTestSuite struct {
	suite.Suite
}

func TestDatabaseSuite(t *testing.T) {
	suite.Run(t, new(DatabaseTestSuite))
}

func (s *DatabaseTestSuite) TestConfig_Validate() {
	var nilCfg *Config
	s.ErrorIs(nilCfg.Validate(), ErrNilConfig)
	s.ErrorIs((&Config{}).Validate(), ErrEmptyDriver)
	s.ErrorIs((&Config{Driver: DriverMySQL}).Validate(), ErrEmptyDSN)
	s.ErrorIs((&Config{Driver: "oracle", DSN: "x"}).Validate(), ErrUnsupportedDriver)
	s.NoError((&Config{Driver: DriverSQLite, DSN: ":memory:"}).Validate())
}

func (s *DatabaseTestSuite) TestConfig_ApplyDefaults() {
	c := &Config{}
	c.ApplyDefaults()
	s.Equal(200*time.Millisecond, c.SlowThreshold)
	s.Equal("warn", c.LogLevel)
	s.Equal(20, c.Pool.MaxOpen)
	s.Equal(time.Hour, c.Pool.MaxLifetime)
}

func (s *DatabaseTestSuite) TestConfig_Enabled() {
	var nilCfg *Config
	s.False(nilCfg.Enabled())
	s.False((&Config{}).Enabled())
	s.True((&Config{Driver: DriverPostgres}).Enabled())
}

func (s *DatabaseTestSuite) TestOpen_Errors() {
	_, err := Open(nil, logger.NewNop())
	s.ErrorIs(err, ErrNilConfig)
	_, err = Open(&Config{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	s.ErrorIs(err, ErrNilLogger)
}

func (s *DatabaseTestSuite) TestOpen_SQLite() {
	db, err := Open(&Config{Driver: DriverSQLite, DSN: ":memory:"}, logger.NewNop())
	s.Require().NoError(err)
	s.NoError(Ping(context.Background(), db))
	s.NoError(Close(db))
}

func (s *DatabaseTestSuite) TestGORMLogger_Trace() {
	var buf bytes.Buffer
	log, err := logger.NewWithWriter(&logger.Config{Level: logger.LevelDebug}, &buf)
	s.Require().NoError(err)

	gl := newGORMLogger(log, 10*time.Millisecond, "info")
	sql := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	s.Contains(buf.String(), "SQL执行失败")

	buf.Reset()
	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	s.Contains(buf.String(), "慢查询")

	buf.Reset()
	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	s.NotContains(buf.String(), "SQL执行失败")

	buf.Reset()
	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	s.Empty(buf.String())
}
