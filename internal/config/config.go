package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/byerim/brandshield/internal/models"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Search        SearchConfig        `yaml:"search"`
	Detection     DetectionConfig     `yaml:"detection"`
	Scan          ScanConfig          `yaml:"scan"`
	Auth          AuthConfig          `yaml:"auth"`
	Notifications NotificationsConfig `yaml:"notifications"`
	DMCA          DMCAConfig          `yaml:"dmca"`
	Brands        []models.BrandProfile `yaml:"brands"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	CORSAllowOrigin string        `yaml:"cors_allow_origin"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	// Enabled gates the Redis-backed daily search quota. When false the
	// quota falls back to an in-process counter.
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SearchConfig struct {
	// Google Custom Search credentials. Empty values disable scanning for
	// every brand (the scan completes with zero counters).
	APIKey         string        `yaml:"api_key"`
	CX             string        `yaml:"cx"`
	ResultsPerPage int           `yaml:"results_per_page"`
	RateDelay      time.Duration `yaml:"rate_delay"`
	MaxDaily       int           `yaml:"max_daily"`
}

type DetectionConfig struct {
	// Weights are applied to the five component scores. They are not
	// renormalized; tuning them directly shifts confidence.
	Weights          Weights `yaml:"weights"`
	ThreatFloor      float64 `yaml:"threat_floor"`
	SuspectFloor     float64 `yaml:"suspect_floor"`
	CriticalSeverity float64 `yaml:"critical_severity"`
	HighSeverity     float64 `yaml:"high_severity"`
	MediumSeverity   float64 `yaml:"medium_severity"`
}

type Weights struct {
	ProfilePic float64 `yaml:"profile_pic_match"`
	Bio        float64 `yaml:"bio_similarity"`
	Username   float64 `yaml:"username_pattern"`
	Content    float64 `yaml:"content_overlap"`
	Name       float64 `yaml:"name_match"`
}

type ScanConfig struct {
	IntervalHours   int    `yaml:"interval_hours"`
	ReportSchedule  string `yaml:"report_schedule"`
	SweepSchedule   string `yaml:"sweep_schedule"`
	StaleAfterHours int    `yaml:"stale_after_hours"`
	// SingleFlight guards against two concurrent scans of the same brand.
	// The upstream behavior had no such guard; disable to reproduce it.
	SingleFlight *bool `yaml:"single_flight"`
}

func (c ScanConfig) SingleFlightEnabled() bool {
	if c.SingleFlight == nil {
		return true
	}
	return *c.SingleFlight
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenExpiry  time.Duration `yaml:"access_token_expiry"`
	RefreshTokenExpiry time.Duration `yaml:"refresh_token_expiry"`

	// BootstrapUser is created as an admin on first start when the
	// users table is empty. No bootstrap happens without a password.
	BootstrapUser     string `yaml:"bootstrap_user"`
	BootstrapPassword string `yaml:"bootstrap_password"`
}

type NotificationsConfig struct {
	MinSeverity models.Severity   `yaml:"min_severity"`
	Slack       SlackNotifyConfig `yaml:"slack"`
	Email       EmailNotifyConfig `yaml:"email"`
}

type SlackNotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type EmailNotifyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type DMCAConfig struct {
	ClaimantName    string `yaml:"claimant_name"`
	ClaimantCompany string `yaml:"claimant_company"`
	ClaimantEmail   string `yaml:"claimant_email"`
	ClaimantAddress string `yaml:"claimant_address"`
	ClaimantWebsite string `yaml:"claimant_website"`
	OutputDir       string `yaml:"output_dir"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {

		if os.IsNotExist(err) {
			cfg := defaultConfig()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Search.ResultsPerPage == 0 {
		c.Search.ResultsPerPage = 10
	}
	if c.Search.RateDelay == 0 {
		c.Search.RateDelay = 2 * time.Second
	}
	if c.Search.MaxDaily == 0 {
		c.Search.MaxDaily = 100
	}

	if c.Detection.Weights == (Weights{}) {
		c.Detection.Weights = Weights{
			ProfilePic: 0.30,
			Bio:        0.20,
			Username:   0.20,
			Content:    0.20,
			Name:       0.10,
		}
	}
	if c.Detection.ThreatFloor == 0 {
		c.Detection.ThreatFloor = 0.35
	}
	if c.Detection.SuspectFloor == 0 {
		c.Detection.SuspectFloor = 0.50
	}
	if c.Detection.CriticalSeverity == 0 {
		c.Detection.CriticalSeverity = 0.90
	}
	if c.Detection.HighSeverity == 0 {
		c.Detection.HighSeverity = 0.75
	}
	if c.Detection.MediumSeverity == 0 {
		c.Detection.MediumSeverity = 0.50
	}

	if c.Scan.IntervalHours == 0 {
		c.Scan.IntervalHours = 6
	}
	if c.Scan.ReportSchedule == "" {
		c.Scan.ReportSchedule = "0 8 * * 1" // Monday 08:00 UTC
	}
	if c.Scan.SweepSchedule == "" {
		c.Scan.SweepSchedule = "0 0 * * *" // midnight UTC
	}
	if c.Scan.StaleAfterHours == 0 {
		c.Scan.StaleAfterHours = 24
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "change-me-in-production"

		fmt.Println("WARNING: Using default JWT secret. Set auth.jwt_secret in production!")
	}
	if c.Auth.AccessTokenExpiry == 0 {
		c.Auth.AccessTokenExpiry = 15 * time.Minute
	}
	if c.Auth.RefreshTokenExpiry == 0 {
		c.Auth.RefreshTokenExpiry = 7 * 24 * time.Hour
	}

	if c.Notifications.MinSeverity == "" {
		c.Notifications.MinSeverity = models.SeverityHigh
	}
	if c.Notifications.Email.SMTPPort == 0 {
		c.Notifications.Email.SMTPPort = 587
	}

	if c.DMCA.OutputDir == "" {
		c.DMCA.OutputDir = "data/dmca_notices"
	}
}

// Validate rejects configurations that would misbehave silently at scan
// time rather than failing at startup.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Brands))
	for i := range c.Brands {
		b := &c.Brands[i]
		if b.Key == "" {
			return fmt.Errorf("brands[%d]: key is required", i)
		}
		if seen[b.Key] {
			return fmt.Errorf("brands[%d]: duplicate brand key %q", i, b.Key)
		}
		seen[b.Key] = true
		if b.DisplayName == "" {
			return fmt.Errorf("brand %s: display_name is required", b.Key)
		}
	}

	w := c.Detection.Weights
	for name, v := range map[string]float64{
		"profile_pic_match": w.ProfilePic,
		"bio_similarity":    w.Bio,
		"username_pattern":  w.Username,
		"content_overlap":   w.Content,
		"name_match":        w.Name,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("detection weight %s out of range [0,1]: %v", name, v)
		}
	}

	if c.Detection.ThreatFloor > c.Detection.SuspectFloor {
		return fmt.Errorf("threat_floor (%v) must not exceed suspect_floor (%v)",
			c.Detection.ThreatFloor, c.Detection.SuspectFloor)
	}

	return nil
}

// Brand returns the profile for a key, trying an @-prefixed variant the way
// callers commonly pass bare handles.
func (c *Config) Brand(key string) (*models.BrandProfile, bool) {
	for i := range c.Brands {
		if c.Brands[i].Key == key {
			return &c.Brands[i], true
		}
	}
	if len(key) > 0 && key[0] != '@' {
		return c.Brand("@" + key)
	}
	return nil, false
}
