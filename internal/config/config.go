package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that cannot drive a run.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Source     SourceConfig     `yaml:"source"`
	Regions    RegionsConfig    `yaml:"regions"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Schema     SchemaConfig     `yaml:"schema"`
	Publish    PublishConfig    `yaml:"publish"`
	Confluence ConfluenceConfig `yaml:"confluence"`
	Google     GoogleConfig     `yaml:"google"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Run        RunConfig        `yaml:"run"`
	Retros     RetrosConfig     `yaml:"retros"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the HTTP listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Redact bool   `yaml:"redact"`
}

// SourceConfig selects where the dashboard CSV exports are read from.
type SourceConfig struct {
	Type       string `yaml:"type"` // gdrive, local, s3
	ParentID   string `yaml:"parent_id"`
	FolderName string `yaml:"folder_name"`
	LocalPath  string `yaml:"local_path"`
	S3Prefix   string `yaml:"s3_prefix"`
}

// RegionsConfig selects the geo-code → region table.
type RegionsConfig struct {
	Type          string `yaml:"type"` // sheets, xlsx, csv
	SpreadsheetID string `yaml:"spreadsheet_id"`
	Tab           string `yaml:"tab"`
	Path          string `yaml:"path"`
}

// ExchangeConfig holds the currency-rate service settings.
type ExchangeConfig struct {
	BaseURL         string  `yaml:"base_url"`
	Token           string  `yaml:"token"`
	AuthScheme      string  `yaml:"auth_scheme"`
	SourceCurrency  string  `yaml:"source_currency"`
	TargetCurrency  string  `yaml:"target_currency"`
	SourceSymbol    string  `yaml:"source_symbol"`
	TargetSymbol    string  `yaml:"target_symbol"`
	FallbackRate    float64 `yaml:"fallback_rate"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	SharedCacheSecs int     `yaml:"shared_cache_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c ExchangeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SharedCacheTTL is zero when the cross-run rate cache is disabled.
func (c ExchangeConfig) SharedCacheTTL() time.Duration {
	return time.Duration(c.SharedCacheSecs) * time.Second
}

// SchemaConfig holds the legacy positional fallbacks for vendor exports.
type SchemaConfig struct {
	ShowFallbackColumn     *int `yaml:"show_fallback_column"`
	CampaignFallbackColumn *int `yaml:"campaign_fallback_column"`
}

// ShowFallback returns the show column position, -1 when disabled.
func (c SchemaConfig) ShowFallback() int {
	if c.ShowFallbackColumn == nil {
		return 10
	}
	return *c.ShowFallbackColumn
}

// CampaignFallback returns the campaign column position, -1 when disabled.
func (c SchemaConfig) CampaignFallback() int {
	if c.CampaignFallbackColumn == nil {
		return 9
	}
	return *c.CampaignFallbackColumn
}

// PublishConfig lists the sinks that receive the combined document.
type PublishConfig struct {
	Sinks     []string `yaml:"sinks"` // confluence, file, s3
	LocalPath string   `yaml:"local_path"`
	S3Prefix  string   `yaml:"s3_prefix"`
}

// ConfluenceConfig holds wiki credentials and placement.
type ConfluenceConfig struct {
	Domain         string `yaml:"domain"`
	Email          string `yaml:"email"`
	APIToken       string `yaml:"api_token"`
	SpaceKey       string `yaml:"space_key"`
	ParentPageID   string `yaml:"parent_page_id"`
	AncestorID     string `yaml:"ancestor_id"`
	TitlePrefix    string `yaml:"title_prefix"`
	PageTemplate   string `yaml:"page_template"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c ConfluenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SearchAncestor falls back to the parent page when no explicit ancestor is set.
func (c ConfluenceConfig) SearchAncestor() string {
	if c.AncestorID != "" {
		return c.AncestorID
	}
	return c.ParentPageID
}

// GoogleConfig holds service-account credentials for Drive, Sheets and Docs.
// Empty endpoints keep the SDK defaults.
type GoogleConfig struct {
	CredentialsFile string   `yaml:"credentials_file"`
	Scopes          []string `yaml:"scopes"`
	DriveEndpoint   string   `yaml:"drive_endpoint"`
	SheetsEndpoint  string   `yaml:"sheets_endpoint"`
	DocsEndpoint    string   `yaml:"docs_endpoint"`
}

// RetrosConfig drives publishing of hand-written JSON retro documents.
type RetrosConfig struct {
	NamePrefix      string `yaml:"name_prefix"`
	LookbackDays    int    `yaml:"lookback_days"`
	OverrideKeyword string `yaml:"override_keyword"`
	TitlePrefix     string `yaml:"title_prefix"`
	Timezone        string `yaml:"timezone"`
}

// Lookback is how far back document creation times are searched.
func (c RetrosConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Location resolves Timezone, falling back to UTC.
func (c RetrosConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// StorageConfig holds S3 settings shared by the S3 source and sink.
type StorageConfig struct {
	S3Bucket        string `yaml:"s3_bucket"`
	AWSRegion       string `yaml:"aws_region"`
	AWSProfile      string `yaml:"aws_profile"` // Empty string uses default credential chain
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig enables the distributed run lock and the shared rate cache.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig enables the run ledger.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RunConfig holds per-run behaviour.
type RunConfig struct {
	LockKey        string `yaml:"lock_key"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	Cleanup        bool   `yaml:"cleanup"`
	RawCSVLimit    int    `yaml:"raw_csv_limit"`
	DocumentPrefix string `yaml:"document_prefix"`
}

// LockTTL returns the lock TTL as a duration
func (c RunConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = "local"
	}
	if cfg.Source.FolderName == "" {
		cfg.Source.FolderName = "dashboard-audio_retro_dashboard"
	}
	if cfg.Regions.Type == "" {
		cfg.Regions.Type = "csv"
	}
	if cfg.Regions.Tab == "" {
		cfg.Regions.Tab = "Regions"
	}
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.wise.com/v1"
	}
	if cfg.Exchange.AuthScheme == "" {
		cfg.Exchange.AuthScheme = "Basic"
	}
	if cfg.Exchange.SourceCurrency == "" {
		cfg.Exchange.SourceCurrency = "USD"
	}
	if cfg.Exchange.TargetCurrency == "" {
		cfg.Exchange.TargetCurrency = "GBP"
	}
	if cfg.Exchange.SourceSymbol == "" {
		cfg.Exchange.SourceSymbol = "$"
	}
	if cfg.Exchange.TargetSymbol == "" {
		cfg.Exchange.TargetSymbol = "£"
	}
	if cfg.Exchange.FallbackRate == 0 {
		// approximate USD→GBP
		cfg.Exchange.FallbackRate = 0.74
	}
	if cfg.Exchange.TimeoutSeconds == 0 {
		cfg.Exchange.TimeoutSeconds = 15
	}
	if len(cfg.Publish.Sinks) == 0 {
		cfg.Publish.Sinks = []string{"file"}
	}
	if cfg.Publish.LocalPath == "" {
		cfg.Publish.LocalPath = "./out"
	}
	if cfg.Confluence.TitlePrefix == "" {
		cfg.Confluence.TitlePrefix = "Audio Retro"
	}
	if cfg.Confluence.TimeoutSeconds == 0 {
		cfg.Confluence.TimeoutSeconds = 30
	}
	if len(cfg.Google.Scopes) == 0 {
		cfg.Google.Scopes = []string{
			"https://www.googleapis.com/auth/drive",
			"https://www.googleapis.com/auth/spreadsheets.readonly",
			"https://www.googleapis.com/auth/documents",
		}
	}
	if cfg.Retros.NamePrefix == "" {
		cfg.Retros.NamePrefix = "Audio Monthly Retro JSON - "
	}
	if cfg.Retros.LookbackDays == 0 {
		cfg.Retros.LookbackDays = 7
	}
	if cfg.Retros.OverrideKeyword == "" {
		cfg.Retros.OverrideKeyword = "override"
	}
	if cfg.Retros.TitlePrefix == "" {
		cfg.Retros.TitlePrefix = "Audio Monthly Retro"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Run.LockKey == "" {
		cfg.Run.LockKey = "audio-retro-run"
	}
	if cfg.Run.LockTTLSeconds == 0 {
		cfg.Run.LockTTLSeconds = 900
	}
	if cfg.Run.RawCSVLimit == 0 {
		cfg.Run.RawCSVLimit = 100000
	}
	if cfg.Run.DocumentPrefix == "" {
		cfg.Run.DocumentPrefix = "combined_csv_data"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables
// alone, for commands that run without a config file.
func FromEnv() *Config {
	_ = godotenv.Load()

	var cfg Config
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WISE_API_TOKEN"); v != "" {
		cfg.Exchange.Token = v
	}
	if v := os.Getenv("WISE_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("FALLBACK_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Exchange.FallbackRate = f
		}
	}
	if v := os.Getenv("CONFLUENCE_DOMAIN"); v != "" {
		cfg.Confluence.Domain = v
	}
	if v := os.Getenv("CONFLUENCE_EMAIL"); v != "" {
		cfg.Confluence.Email = v
	}
	if v := os.Getenv("CONFLUENCE_API_TOKEN"); v != "" {
		cfg.Confluence.APIToken = v
	}
	if v := os.Getenv("CONFLUENCE_SPACE_KEY"); v != "" {
		cfg.Confluence.SpaceKey = v
	}
	if v := os.Getenv("CONFLUENCE_PARENT_PAGE_ID"); v != "" {
		cfg.Confluence.ParentPageID = v
	}
	if v := os.Getenv("GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.Google.CredentialsFile = v
	}
	if v := os.Getenv("DRIVE_PARENT_ID"); v != "" {
		cfg.Source.ParentID = v
	}
	if v := os.Getenv("REGIONS_SPREADSHEET_ID"); v != "" {
		cfg.Regions.SpreadsheetID = v
	}
	if v := os.Getenv("AWS_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.SecretAccessKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
}

// ValidateRetros checks the settings the retro document job needs.
func (cfg *Config) ValidateRetros() error {
	var problems []string
	if cfg.Google.CredentialsFile == "" {
		problems = append(problems, "retros require google.credentials_file")
	}
	c := cfg.Confluence
	if c.Domain == "" || c.Email == "" || c.APIToken == "" || c.SpaceKey == "" || c.ParentPageID == "" {
		problems = append(problems, "retros require confluence domain, email, api_token, space_key and parent_page_id")
	}
	if cfg.Retros.LookbackDays < 0 {
		problems = append(problems, "retros.lookback_days must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// HasSink reports whether the named publish sink is enabled.
func (cfg *Config) HasSink(name string) bool {
	for _, s := range cfg.Publish.Sinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Validate checks that every selected backend has the settings it needs.
func (cfg *Config) Validate() error {
	var problems []string

	switch cfg.Source.Type {
	case "gdrive":
		if cfg.Google.CredentialsFile == "" {
			problems = append(problems, "source gdrive requires google.credentials_file")
		}
		if cfg.Source.ParentID == "" {
			problems = append(problems, "source gdrive requires source.parent_id")
		}
	case "local":
		if cfg.Source.LocalPath == "" {
			problems = append(problems, "source local requires source.local_path")
		}
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			problems = append(problems, "source s3 requires storage.s3_bucket")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown source type %q", cfg.Source.Type))
	}

	switch cfg.Regions.Type {
	case "sheets":
		if cfg.Regions.SpreadsheetID == "" || cfg.Google.CredentialsFile == "" {
			problems = append(problems, "regions sheets requires regions.spreadsheet_id and google.credentials_file")
		}
	case "xlsx", "csv":
		if cfg.Regions.Path == "" {
			problems = append(problems, fmt.Sprintf("regions %s requires regions.path", cfg.Regions.Type))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown regions type %q", cfg.Regions.Type))
	}

	for _, sink := range cfg.Publish.Sinks {
		switch strings.ToLower(sink) {
		case "confluence":
			c := cfg.Confluence
			if c.Domain == "" || c.Email == "" || c.APIToken == "" || c.SpaceKey == "" || c.ParentPageID == "" {
				problems = append(problems, "sink confluence requires domain, email, api_token, space_key and parent_page_id")
			}
		case "file":
		case "s3":
			if cfg.Storage.S3Bucket == "" {
				problems = append(problems, "sink s3 requires storage.s3_bucket")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown sink %q", sink))
		}
	}

	if cfg.Exchange.FallbackRate <= 0 {
		problems = append(problems, "exchange.fallback_rate must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
