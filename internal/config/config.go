// Package config loads the statement pipeline configuration from defaults,
// an optional YAML file, a .env file and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the statement pipeline.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Prefixes   PrefixConfig     `yaml:"prefixes"`
	PDF        PDFConfig        `yaml:"pdf"`
	Extraction ExtractionConfig `yaml:"extraction"`
	DataLake   DataLakeConfig   `yaml:"datalake"`
	Logging    LoggingConfig    `yaml:"logging"`
	BigQuery   BigQueryConfig   `yaml:"bigquery"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig selects the object store backend and buckets.
type StorageConfig struct {
	Backend      string `yaml:"backend"` // gcs, s3, file, mem
	Bucket       string `yaml:"bucket"`
	SilverBucket string `yaml:"silver_bucket"`
	FileRoot     string `yaml:"file_root"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	S3Region     string `yaml:"s3_region"`

	ServiceAccount ServiceAccount `yaml:"service_account"`
}

// ServiceAccount mirrors the fields of a Google service account key file.
type ServiceAccount struct {
	Type                    string `yaml:"type" json:"type"`
	ProjectID               string `yaml:"project_id" json:"project_id"`
	PrivateKeyID            string `yaml:"private_key_id" json:"private_key_id"`
	PrivateKey              string `yaml:"private_key" json:"private_key"`
	ClientEmail             string `yaml:"client_email" json:"client_email"`
	ClientID                string `yaml:"client_id" json:"client_id"`
	AuthURI                 string `yaml:"auth_uri" json:"auth_uri"`
	TokenURI                string `yaml:"token_uri" json:"token_uri"`
	AuthProviderX509CertURL string `yaml:"auth_provider_x509_cert_url" json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `yaml:"client_x509_cert_url" json:"client_x509_cert_url"`
	UniverseDomain          string `yaml:"universe_domain" json:"universe_domain"`
}

// PrefixConfig holds the object prefixes the stages read and write.
type PrefixConfig struct {
	PDF         string `yaml:"pdf"`          // raw encrypted statements
	PDFUnlocked string `yaml:"pdf_unlocked"` // decrypted statements; json/parquet prefixes derive from it
}

// PDFConfig configures decryption and text extraction.
type PDFConfig struct {
	Password        string `yaml:"password"`
	TextBackend     string `yaml:"text_backend"` // native or mupdf
	LocalPath       string `yaml:"local_path"`
	OutputLocalPath string `yaml:"output_local_path"`
	KeepLocalCopy   bool   `yaml:"keep_local_copy"`
}

// ExtractionConfig configures the language model call.
type ExtractionConfig struct {
	Provider    string        `yaml:"provider"` // openai or gemini
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	DebugDir    string        `yaml:"debug_dir"`
}

// DataLakeConfig configures the layered dataset store.
type DataLakeConfig struct {
	Root   string            `yaml:"root"`
	Layers map[string]string `yaml:"layers"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BigQueryConfig enables loading unified tables into BigQuery.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
}

// Enabled reports whether a BigQuery destination is configured.
func (b BigQueryConfig) Enabled() bool {
	return b.ProjectID != "" && b.Dataset != ""
}

// Load reads the configuration. path may be empty, in which case only
// defaults, .env and the environment are consulted.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  "gcs",
			FileRoot: "data",
		},
		PDF: PDFConfig{
			TextBackend:     "native",
			LocalPath:       "cuentas_pdf",
			OutputLocalPath: "unlocked_pdf",
		},
		Extraction: ExtractionConfig{
			Provider:    "openai",
			Model:       "",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0,
			Timeout:     2 * time.Minute,
			DebugDir:    "debug_outputs",
		},
		DataLake: DataLakeConfig{
			Root: "lake",
			Layers: map[string]string{
				"bronze":   "1-bronze",
				"silver":   "2-silver",
				"gold":     "3-gold",
				"platinum": "4-platinum",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.APIKey, "API_KEY")

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.Bucket, "BUCKET_NAME")
	setString(&cfg.Storage.SilverBucket, "SILVER_BUCKET_NAME")
	setString(&cfg.Storage.FileRoot, "STORAGE_FILE_ROOT")
	setString(&cfg.Storage.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.Storage.S3Region, "S3_REGION")

	sa := &cfg.Storage.ServiceAccount
	setString(&sa.Type, "GCP_SERVICE_ACCOUNT_TYPE")
	setString(&sa.ProjectID, "GCP_SERVICE_ACCOUNT_PROJECT_ID")
	setString(&sa.PrivateKeyID, "GCP_SERVICE_ACCOUNT_PRIVATE_KEY_ID")
	setString(&sa.PrivateKey, "GCP_SERVICE_ACCOUNT_PRIVATE_KEY")
	setString(&sa.ClientEmail, "GCP_SERVICE_ACCOUNT_CLIENT_EMAIL")
	setString(&sa.ClientID, "GCP_SERVICE_ACCOUNT_CLIENT_ID")
	setString(&sa.AuthURI, "GCP_SERVICE_ACCOUNT_AUTH_URI")
	setString(&sa.TokenURI, "GCP_SERVICE_ACCOUNT_TOKEN_URI")
	setString(&sa.AuthProviderX509CertURL, "GCP_SERVICE_ACCOUNT_AUTH_PROVIDER_X509_CERT_URL")
	setString(&sa.ClientX509CertURL, "GCP_SERVICE_ACCOUNT_CLIENT_X509_CERT_URL")
	setString(&sa.UniverseDomain, "GCP_SERVICE_ACCOUNT_UNIVERSE_DOMAIN")

	setString(&cfg.Prefixes.PDF, "PREFIX")
	setString(&cfg.Prefixes.PDFUnlocked, "PREFIX_PDF_UNLOCKED")

	setString(&cfg.PDF.Password, "PASSWORD_PDF")
	setString(&cfg.PDF.TextBackend, "PDF_TEXT_BACKEND")
	setString(&cfg.PDF.LocalPath, "LOCAL_PATH")
	setString(&cfg.PDF.OutputLocalPath, "OUTPUT_LOCAL_PATH")
	setBool(&cfg.PDF.KeepLocalCopy, "KEEP_LOCAL_COPY")

	setString(&cfg.Extraction.Provider, "MODEL_PROVIDER")
	setString(&cfg.Extraction.Model, "MODEL_NAME")
	setString(&cfg.Extraction.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Extraction.DebugDir, "DEBUG_DIR")
	switch strings.ToLower(cfg.Extraction.Provider) {
	case "gemini":
		setString(&cfg.Extraction.APIKey, "GEMINI_API_KEY")
	default:
		setString(&cfg.Extraction.APIKey, "OPENAI_API_KEY")
	}

	setString(&cfg.DataLake.Root, "DATALAKE_ROOT")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	setString(&cfg.BigQuery.ProjectID, "BIGQUERY_PROJECT")
	setString(&cfg.BigQuery.Dataset, "BIGQUERY_DATASET")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "gcs", "s3", "file", "mem":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("bucket is required (BUCKET_NAME)")
	}
	switch strings.ToLower(c.Extraction.Provider) {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown model provider %q", c.Extraction.Provider)
	}
	switch c.PDF.TextBackend {
	case "native", "mupdf":
	default:
		return fmt.Errorf("unknown pdf text backend %q", c.PDF.TextBackend)
	}
	if c.BigQuery.Enabled() && c.Storage.Backend != "gcs" {
		return fmt.Errorf("bigquery loading requires the gcs storage backend")
	}
	return nil
}

// SilverBucket returns the bucket unified tables are written to,
// falling back to the main bucket.
func (c *Config) SilverBucket() string {
	if c.Storage.SilverBucket != "" {
		return c.Storage.SilverBucket
	}
	return c.Storage.Bucket
}

// CredentialsJSON assembles a service account key from the configured
// fields. It returns nil when no private key is configured, meaning
// Application Default Credentials should be used.
func (c *Config) CredentialsJSON() ([]byte, error) {
	sa := c.Storage.ServiceAccount
	if sa.PrivateKey == "" || sa.ClientEmail == "" {
		return nil, nil
	}
	if sa.Type == "" {
		sa.Type = "service_account"
	}
	// keys pasted into env files usually carry escaped newlines
	sa.PrivateKey = strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")
	return json.Marshal(sa)
}
