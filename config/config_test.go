package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 5*time.Minute, cfg.Session.LoginTimeout)
	assert.Equal(t, 50, cfg.Discovery.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Workflow.SubmitBudget)
	assert.Equal(t, 60*time.Second, cfg.Workflow.ConfirmTimeout)
	assert.False(t, cfg.Workflow.OptimisticSuccess)
	assert.Equal(t, "file", cfg.Storage.FailureSink)
	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Contains(t, cfg.Session.SignInPatterns, "/login")
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobpilot.yaml")
	content := `
discovery:
  filter_url: https://jobs.example.com/search?q=go
run:
  max_applications: 3
  apply_delay: 2s
workflow:
  optimistic_success: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("HEADLESS", "false")
	t.Setenv("AWS_S3_BUCKET", "sessions-bucket")
	t.Setenv("JOBPILOT_RUN_MAX_APPLICATIONS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://jobs.example.com/search?q=go", cfg.Discovery.FilterURL)
	assert.Equal(t, 7, cfg.Run.MaxApplications, "environment overrides the file")
	assert.Equal(t, 2*time.Second, cfg.Run.ApplyDelay)
	assert.True(t, cfg.Workflow.OptimisticSuccess)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "sessions-bucket", cfg.Storage.AWS.Bucket)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() AppConfig {
		return AppConfig{
			Session:   SessionConfig{Store: "file", FilePath: "session.json"},
			Storage:   StorageConfig{FailureSink: "file", FailureFile: "failures.json"},
			Oracle:    OracleConfig{Provider: "none"},
			Discovery: DiscoveryConfig{MaxAttempts: 50},
			Workflow:  WorkflowConfig{SubmitBudget: time.Second, ConfirmTimeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		isValid bool
	}{
		{name: "valid configuration", mutate: func(c *AppConfig) {}, isValid: true},
		{name: "s3 store without bucket", mutate: func(c *AppConfig) { c.Session.Store = "s3" }, isValid: false},
		{name: "unknown session store", mutate: func(c *AppConfig) { c.Session.Store = "redis" }, isValid: false},
		{name: "postgres sink without database", mutate: func(c *AppConfig) { c.Storage.FailureSink = "postgres" }, isValid: false},
		{name: "dynamodb sink", mutate: func(c *AppConfig) {
			c.Storage.FailureSink = "dynamodb"
			c.Storage.DynamoTable = "failures"
		}, isValid: true},
		{name: "s3 screenshots without bucket", mutate: func(c *AppConfig) { c.Storage.Screenshots = "s3" }, isValid: false},
		{name: "file screenshots without dir", mutate: func(c *AppConfig) { c.Storage.Screenshots = "file" }, isValid: false},
		{name: "unknown screenshot store", mutate: func(c *AppConfig) { c.Storage.Screenshots = "ftp" }, isValid: false},
		{name: "unknown oracle", mutate: func(c *AppConfig) { c.Oracle.Provider = "davinci" }, isValid: false},
		{name: "zero attempts", mutate: func(c *AppConfig) { c.Discovery.MaxAttempts = 0 }, isValid: false},
		{name: "negative cap", mutate: func(c *AppConfig) { c.Run.MaxApplications = -1 }, isValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.isValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
