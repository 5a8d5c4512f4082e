package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
predictor:
  command: /usr/bin/python3
  args: ["/opt/model/predict.py"]
  timeout: 5s
persistence:
  workers: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, int64(64*1024), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "/usr/bin/python3", cfg.Predictor.Command)
	assert.Equal(t, []string{"/opt/model/predict.py"}, cfg.Predictor.Args)
	assert.Equal(t, 5*time.Second, cfg.Predictor.Timeout)
	assert.Equal(t, int64(8), cfg.Predictor.MaxConcurrent)
	assert.Equal(t, 2, cfg.Persistence.Workers)
	assert.Equal(t, 1024, cfg.Persistence.QueueSize)
	assert.Equal(t, BackendPostgres, cfg.Session.Backend)
	assert.Equal(t, "user_sessions", cfg.Session.Table)
	assert.Equal(t, "waterwise.sid", cfg.Session.CookieName)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "python", cfg.Predictor.Command)
	assert.Equal(t, []string{"predict.py"}, cfg.Predictor.Args)
	assert.Equal(t, 30*time.Second, cfg.Predictor.Timeout)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "8080"
session:
  backend: postgres
`)
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_BACKEND", "jwt")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PREDICTOR_TIMEOUT", "2s")
	t.Setenv("PREDICTOR_ARGS", "-u predict.py")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, BackendJWT, cfg.Session.Backend)
	assert.Equal(t, 2*time.Second, cfg.Predictor.Timeout)
	assert.Equal(t, []string{"-u", "predict.py"}, cfg.Predictor.Args)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "session:\n  backend: ldap\n",
		"redis no url":    "session:\n  backend: redis\n",
		"jwt no secret":   "session:\n  backend: jwt\n",
		"write timeout":   "server:\n  write_timeout: 1s\npredictor:\n  timeout: 5s\n",
		"bad yaml":        "server: [",
	}
	for name, data := range cases {
		_, err := Load(writeConfig(t, data))
		assert.Error(t, err, name)
	}
}

func TestLoadRejectsBadEnvDuration(t *testing.T) {
	t.Setenv("PREDICTOR_TIMEOUT", "soon")

	_, err := Load("")
	assert.ErrorContains(t, err, "PREDICTOR_TIMEOUT")
}
