package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

source:
  type: "gdrive"
  parent_id: "root-folder"
  folder_name: "weekly-exports"

regions:
  type: "sheets"
  spreadsheet_id: "sheet-123"
  tab: "Geo"

exchange:
  token: "file-token"
  fallback_rate: 0.8
  shared_cache_seconds: 600

schema:
  show_fallback_column: -1

publish:
  sinks: ["confluence", "s3"]

confluence:
  domain: "acme"
  email: "ops@acme.test"
  api_token: "tok"
  space_key: "MKT"
  parent_page_id: "42"

google:
  credentials_file: "/secrets/sa.json"

storage:
  s3_bucket: "retro-bucket"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "gdrive", cfg.Source.Type)
	assert.Equal(t, "weekly-exports", cfg.Source.FolderName)
	assert.Equal(t, "sheet-123", cfg.Regions.SpreadsheetID)
	assert.Equal(t, "Geo", cfg.Regions.Tab)

	assert.Equal(t, 0.8, cfg.Exchange.FallbackRate)
	assert.Equal(t, 10*time.Minute, cfg.Exchange.SharedCacheTTL())

	assert.Equal(t, -1, cfg.Schema.ShowFallback())
	assert.Equal(t, 9, cfg.Schema.CampaignFallback())

	assert.True(t, cfg.HasSink("confluence"))
	assert.True(t, cfg.HasSink("S3"))
	assert.False(t, cfg.HasSink("file"))
	assert.Equal(t, "42", cfg.Confluence.SearchAncestor())

	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
source:
  local_path: "./exports"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "local", cfg.Source.Type)
	assert.Equal(t, "dashboard-audio_retro_dashboard", cfg.Source.FolderName)
	assert.Equal(t, "https://api.wise.com/v1", cfg.Exchange.BaseURL)
	assert.Equal(t, "USD", cfg.Exchange.SourceCurrency)
	assert.Equal(t, "GBP", cfg.Exchange.TargetCurrency)
	assert.Equal(t, "$", cfg.Exchange.SourceSymbol)
	assert.Equal(t, "£", cfg.Exchange.TargetSymbol)
	assert.Equal(t, 0.74, cfg.Exchange.FallbackRate)
	assert.Equal(t, time.Duration(0), cfg.Exchange.SharedCacheTTL())
	assert.Equal(t, 10, cfg.Schema.ShowFallback())
	assert.Equal(t, 9, cfg.Schema.CampaignFallback())
	assert.Equal(t, []string{"file"}, cfg.Publish.Sinks)
	assert.Equal(t, 100000, cfg.Run.RawCSVLimit)
	assert.Equal(t, 15*time.Minute, cfg.Run.LockTTL())
	assert.Equal(t, "combined_csv_data", cfg.Run.DocumentPrefix)
	assert.Equal(t, "Audio Monthly Retro JSON - ", cfg.Retros.NamePrefix)
	assert.Equal(t, 7*24*time.Hour, cfg.Retros.Lookback())
	assert.Equal(t, "override", cfg.Retros.OverrideKeyword)
	assert.Equal(t, time.UTC, cfg.Retros.Location())
	assert.Empty(t, cfg.Google.DriveEndpoint)
}

func TestValidateRetros(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"complete", `
google:
  credentials_file: sa.json
confluence:
  domain: acme
  email: a@b.c
  api_token: t
  space_key: MKT
  parent_page_id: "1"
`, ""},
		{"missing credentials", `
confluence:
  domain: acme
  email: a@b.c
  api_token: t
  space_key: MKT
  parent_page_id: "1"
`, "google.credentials_file"},
		{"missing confluence", `
google:
  credentials_file: sa.json
`, "confluence domain"},
		{"negative lookback", `
google:
  credentials_file: sa.json
confluence:
  domain: acme
  email: a@b.c
  api_token: t
  space_key: MKT
  parent_page_id: "1"
retros:
  lookback_days: -1
`, "lookback_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.yaml))
			require.NoError(t, err)

			err = cfg.ValidateRetros()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
exchange:
  token: "file-token"
confluence:
  domain: "file-domain"
`)

	t.Setenv("WISE_API_TOKEN", "env-token")
	t.Setenv("CONFLUENCE_DOMAIN", "env-domain")
	t.Setenv("FALLBACK_RATE", "0.79")
	t.Setenv("DATABASE_URL", "postgres://localhost/retro")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Exchange.Token)
	assert.Equal(t, "env-domain", cfg.Confluence.Domain)
	assert.Equal(t, 0.79, cfg.Exchange.FallbackRate)
	assert.Equal(t, "postgres://localhost/retro", cfg.Database.URL)
}

func TestLoadFromEnvIgnoresBadFallbackRate(t *testing.T) {
	configPath := writeConfig(t, "{}\n")
	t.Setenv("FALLBACK_RATE", "not-a-number")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0.74, cfg.Exchange.FallbackRate)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "local source without path",
			yaml:    "regions:\n  path: r.csv\n",
			wantErr: "source local requires source.local_path",
		},
		{
			name:    "unknown source",
			yaml:    "source:\n  type: ftp\nregions:\n  path: r.csv\n",
			wantErr: `unknown source type "ftp"`,
		},
		{
			name:    "sheets without spreadsheet",
			yaml:    "source:\n  local_path: x\nregions:\n  type: sheets\n",
			wantErr: "regions sheets requires",
		},
		{
			name:    "confluence sink without credentials",
			yaml:    "source:\n  local_path: x\nregions:\n  path: r.csv\npublish:\n  sinks: [confluence]\n",
			wantErr: "sink confluence requires",
		},
		{
			name:    "unknown sink",
			yaml:    "source:\n  local_path: x\nregions:\n  path: r.csv\npublish:\n  sinks: [email]\n",
			wantErr: `unknown sink "email"`,
		},
		{
			name: "valid local run",
			yaml: "source:\n  local_path: x\nregions:\n  type: xlsx\n  path: r.xlsx\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimeout(t *testing.T) {
	cfg := ExchangeConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.Timeout())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("WISE_API_TOKEN", "env-token")

	cfg := FromEnv()
	assert.Equal(t, "env-token", cfg.Exchange.Token)
	assert.Equal(t, 0.74, cfg.Exchange.FallbackRate)
	assert.Equal(t, []string{"file"}, cfg.Publish.Sinks)
}
