package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	UserAgent string `mapstructure:"user_agent"`
}

type SessionConfig struct {
	LoginURL       string        `mapstructure:"login_url"`
	ProbeURL       string        `mapstructure:"probe_url"`
	SignInPatterns []string      `mapstructure:"sign_in_patterns"`
	Identity       string        `mapstructure:"identity"`
	LoginTimeout   time.Duration `mapstructure:"login_timeout"`
	Store          string        `mapstructure:"store"` // "file" or "s3"
	FilePath       string        `mapstructure:"file_path"`
	S3Key          string        `mapstructure:"s3_key"`
}

type DiscoveryConfig struct {
	FilterURL     string        `mapstructure:"filter_url"`
	CardSelectors []string      `mapstructure:"card_selectors"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
}

type WorkflowConfig struct {
	SubmitBudget      time.Duration `mapstructure:"submit_budget"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PopupWait         time.Duration `mapstructure:"popup_wait"`
	AutofillWait      time.Duration `mapstructure:"autofill_wait"`
	MaxFormPages      int           `mapstructure:"max_form_pages"`
	OptimisticSuccess bool          `mapstructure:"optimistic_success"`
	ResumePath        string        `mapstructure:"resume_path"`
}

type RunConfig struct {
	MaxApplications int           `mapstructure:"max_applications"`
	ApplyDelay      time.Duration `mapstructure:"apply_delay"`
}

type OracleConfig struct {
	Provider string        `mapstructure:"provider"` // "gemini" or "none"
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
}

type StorageConfig struct {
	FailureSink   string    `mapstructure:"failure_sink"` // "file", "dynamodb" or "postgres"
	FailureFile   string    `mapstructure:"failure_file"`
	DynamoTable   string    `mapstructure:"dynamo_table"`
	Screenshots   string    `mapstructure:"screenshots"` // "none", "file" or "s3"
	ScreenshotDir string    `mapstructure:"screenshot_dir"`
	AWS           AWSConfig `mapstructure:"aws"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type LoggerConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Port       string        `mapstructure:"port"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	// JWTSecret enables bearer-token auth on the API when set.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type AppConfig struct {
	Environment string          `mapstructure:"environment"`
	ProfilePath string          `mapstructure:"profile_path"`
	Browser     BrowserConfig   `mapstructure:"browser"`
	Session     SessionConfig   `mapstructure:"session"`
	Discovery   DiscoveryConfig `mapstructure:"discovery"`
	Workflow    WorkflowConfig  `mapstructure:"workflow"`
	Run         RunConfig       `mapstructure:"run"`
	Oracle      OracleConfig    `mapstructure:"oracle"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Logger      LoggerConfig    `mapstructure:"logger"`
	Server      ServerConfig    `mapstructure:"server"`
}

// Load reads configuration from defaults, an optional YAML file, a .env file
// and the environment, in increasing order of precedence.
func Load(path string) (*AppConfig, error) {
	// .env is optional, a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("JOBPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvAliases(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("profile_path", "profile.yaml")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36")

	v.SetDefault("session.login_url", "")
	v.SetDefault("session.probe_url", "")
	v.SetDefault("session.sign_in_patterns", []string{"/login", "/signin", "/sign-in", "/auth", "/checkpoint"})
	v.SetDefault("session.identity", "")
	v.SetDefault("session.login_timeout", 5*time.Minute)
	v.SetDefault("session.store", "file")
	v.SetDefault("session.file_path", "session.json")
	v.SetDefault("session.s3_key", "sessions/session.json")

	v.SetDefault("discovery.filter_url", "")
	v.SetDefault("discovery.card_selectors", []string{})
	v.SetDefault("discovery.max_attempts", 50)
	v.SetDefault("discovery.settle_delay", 1500*time.Millisecond)

	v.SetDefault("workflow.submit_budget", 30*time.Second)
	v.SetDefault("workflow.confirm_timeout", 60*time.Second)
	v.SetDefault("workflow.poll_interval", time.Second)
	v.SetDefault("workflow.popup_wait", 3*time.Second)
	v.SetDefault("workflow.autofill_wait", 2*time.Second)
	v.SetDefault("workflow.max_form_pages", 8)
	v.SetDefault("workflow.optimistic_success", false)
	v.SetDefault("workflow.resume_path", "")

	v.SetDefault("run.max_applications", 25)
	v.SetDefault("run.apply_delay", 10*time.Second)

	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "gemini-2.0-flash")
	v.SetDefault("oracle.timeout", 20*time.Second)

	v.SetDefault("storage.failure_sink", "file")
	v.SetDefault("storage.failure_file", "failures.json")
	v.SetDefault("storage.dynamo_table", "job_application_failures")
	v.SetDefault("storage.screenshots", "file")
	v.SetDefault("storage.screenshot_dir", "screenshots")
	v.SetDefault("storage.aws.region", "")
	v.SetDefault("storage.aws.access_key_id", "")
	v.SetDefault("storage.aws.secret_access_key", "")
	v.SetDefault("storage.aws.bucket", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("logger.service_name", "jobpilot")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("server.port", "8081")
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("server.jwt_secret", "")
}

// bindEnvAliases keeps the conventional variable names working alongside the
// prefixed ones.
func bindEnvAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"browser.headless":                  {"JOBPILOT_BROWSER_HEADLESS", "HEADLESS"},
		"oracle.api_key":                    {"JOBPILOT_ORACLE_API_KEY", "GEMINI_API_KEY"},
		"storage.aws.region":                {"JOBPILOT_STORAGE_AWS_REGION", "AWS_REGION"},
		"storage.aws.access_key_id":         {"JOBPILOT_STORAGE_AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"},
		"storage.aws.secret_access_key":     {"JOBPILOT_STORAGE_AWS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"},
		"storage.aws.bucket":                {"JOBPILOT_STORAGE_AWS_BUCKET", "AWS_S3_BUCKET"},
		"database.host":                     {"JOBPILOT_DATABASE_HOST", "DB_HOST"},
		"database.port":                     {"JOBPILOT_DATABASE_PORT", "DB_PORT"},
		"database.user":                     {"JOBPILOT_DATABASE_USER", "DB_USER"},
		"database.password":                 {"JOBPILOT_DATABASE_PASSWORD", "DB_PASSWORD"},
		"database.name":                     {"JOBPILOT_DATABASE_NAME", "DB_NAME"},
		"database.sslmode":                  {"JOBPILOT_DATABASE_SSLMODE", "DB_SSLMODE"},
		"server.port":                       {"JOBPILOT_SERVER_PORT", "PORT"},
		"server.jwt_secret":                 {"JOBPILOT_SERVER_JWT_SECRET", "JWT_SECRET"},
		"environment":                       {"JOBPILOT_ENVIRONMENT", "ENVIRONMENT"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Session.Store {
	case "file":
		if c.Session.FilePath == "" {
			errs = append(errs, errors.New("session.file_path is required for the file session store"))
		}
	case "s3":
		if c.Storage.AWS.Bucket == "" {
			errs = append(errs, errors.New("storage.aws.bucket is required for the s3 session store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session store %q", c.Session.Store))
	}

	switch c.Storage.FailureSink {
	case "file":
		if c.Storage.FailureFile == "" {
			errs = append(errs, errors.New("storage.failure_file is required for the file failure sink"))
		}
	case "dynamodb":
		if c.Storage.DynamoTable == "" {
			errs = append(errs, errors.New("storage.dynamo_table is required for the dynamodb failure sink"))
		}
	case "postgres":
		if c.Database.DBName == "" {
			errs = append(errs, errors.New("database.name is required for the postgres failure sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown failure sink %q", c.Storage.FailureSink))
	}

	switch c.Storage.Screenshots {
	case "", "none":
	case "file":
		if c.Storage.ScreenshotDir == "" {
			errs = append(errs, errors.New("storage.screenshot_dir is required for file screenshots"))
		}
	case "s3":
		if c.Storage.AWS.Bucket == "" {
			errs = append(errs, errors.New("storage.aws.bucket is required for s3 screenshots"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown screenshot store %q", c.Storage.Screenshots))
	}

	switch c.Oracle.Provider {
	case "gemini", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider))
	}

	if c.Discovery.MaxAttempts <= 0 {
		errs = append(errs, errors.New("discovery.max_attempts must be positive"))
	}
	if c.Workflow.SubmitBudget <= 0 || c.Workflow.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("workflow budgets must be positive"))
	}
	if c.Run.MaxApplications < 0 {
		errs = append(errs, errors.New("run.max_applications cannot be negative"))
	}

	return errors.Join(errs...)
}
