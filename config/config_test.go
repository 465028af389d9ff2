package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite 配置测试套件.
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
}

type limitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type testConfig struct {
	Environment string      `mapstructure:"environment"`
	RateLimit   limitConfig `mapstructure:"rate_limit"`
}

func (c *testConfig) ApplyDefaults() {
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 100
	}
}

func (c *testConfig) Validate() error {
	if c.Environment == "invalid" {
		return errors.New("environment 非法")
	}
	return nil
}

func (s *ConfigTestSuite) write(name, content string) string {
	path := filepath.Join(s.tempDir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *ConfigTestSuite) TestLoad_YAML() {
	path := s.write("gatekeeper.yaml", `
environment: production
rate_limit:
  max_requests: 50
  window: 10m
`)
	cfg, err := Load[testConfig](path, WithoutEnv())
	s.Require().NoError(err)
	s.Equal("production", cfg.Environment)
	s.Equal(50, cfg.RateLimit.MaxRequests)
	s.Equal(10*time.Minute, cfg.RateLimit.Window)
}

func (s *ConfigTestSuite) TestLoad_AppliesDefaults() {
	path := s.write("gatekeeper.json", `{"environment":"development"}`)
	cfg, err := Load[testConfig](path, WithoutEnv())
	s.Require().NoError(err)
	s.Equal(100, cfg.RateLimit.MaxRequests)
}

func (s *ConfigTestSuite) TestLoad_FileNotFound() {
	_, err := Load[testConfig](filepath.Join(s.tempDir, "missing.yaml"))
	s.ErrorIs(err, ErrFileNotFound)
}

func (s *ConfigTestSuite) TestLoad_UnknownExtension() {
	path := s.write("gatekeeper.conf", "environment: x")
	_, err := Load[testConfig](path)
	s.ErrorIs(err, ErrInvalidType)
}

func (s *ConfigTestSuite) TestLoad_ValidationError() {
	path := s.write("bad.yaml", "environment: invalid\n")
	_, err := Load[testConfig](path, WithoutEnv())
	s.ErrorIs(err, ErrValidation)
}

func (s *ConfigTestSuite) TestLoad_EnvOverride() {
	s.T().Setenv("GATEKEEPER_ENVIRONMENT", "staging")
	path := s.write("env.yaml", "environment: development\n")
	cfg, err := Load[testConfig](path)
	s.Require().NoError(err)
	s.Equal("staging", cfg.Environment)
}

func (s *ConfigTestSuite) TestLoadFromBytes() {
	cfg, err := LoadFromBytes[testConfig]([]byte("rate_limit:\n  max_requests: 7\n"), "yaml",
		WithoutEnv(), WithDefaults(map[string]any{"environment": "test"}))
	s.Require().NoError(err)
	s.Equal("test", cfg.Environment)
	s.Equal(7, cfg.RateLimit.MaxRequests)
}

func (s *ConfigTestSuite) TestLoadFromBytes_Malformed() {
	_, err := LoadFromBytes[testConfig]([]byte("{not json"), "json", WithoutEnv())
	s.ErrorIs(err, ErrReadConfig)
}

func (s *ConfigTestSuite) TestGetConfigType() {
	s.Equal("yaml", GetConfigType("a.yml"))
	s.Equal("yaml", GetConfigType("a.YAML"))
	s.Equal("json", GetConfigType("a.json"))

	s.Empty(GetConfigType("a.toml"))
	s.Equal("", GetConfigType("a"))
}
