// Package config resolves the process-wide configuration snapshot from the
// environment and an optional dotenv file. The snapshot is built once before
// any gateway is constructed and never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAddr          = ":8080"
	DefaultAPIVersion    = "/api/v1"
	DefaultEnvFile       = ".env"
	DefaultRemoteTimeout = 10 * time.Second
	DefaultStorageRegion = "us-east-1"
)

// UploadPolicy selects how a blob gateway performs uploads.
type UploadPolicy string

const (
	// UploadPolicySync blocks the request until the blob store confirms
	// the write.
	UploadPolicySync UploadPolicy = "sync"
	// UploadPolicyQueued hands the payload to the write-behind queue and
	// returns the destination URL immediately.
	UploadPolicyQueued UploadPolicy = "queued"
)

// Config is the immutable configuration snapshot for the process lifetime.
type Config struct {
	ProjectName string
	Addr        string
	APIVersion  string
	LogLevel    string
	LogFormat   string

	CORSOrigins []string

	DatabaseURI string
	DatabaseKey string
	DatabaseID  string

	StorageAccountName      string
	StorageAccountKey       string
	StorageConnectionString string
	StoragePublicEndpoint   string
	StorageRegion           string

	ImageUploadPolicy UploadPolicy
	FileUploadPolicy  UploadPolicy

	RemoteTimeout time.Duration

	// CredentialsLoaded reports whether a dotenv file was found; surfaced
	// by the health endpoint.
	CredentialsLoaded bool
}

// Load builds the snapshot: dotenv overlay first, then environment values,
// then defaults for anything still unset.
func Load() (*Config, error) {
	envFile := firstNonEmpty(os.Getenv("COLDSTART_ENV_FILE"), DefaultEnvFile)
	credentialsLoaded := godotenv.Load(envFile) == nil

	defaultPolicy, err := parseUploadPolicy(os.Getenv("COLDSTART_UPLOAD_POLICY"), UploadPolicySync)
	if err != nil {
		return nil, err
	}
	imagePolicy, err := parseUploadPolicy(os.Getenv("COLDSTART_IMAGE_UPLOAD_POLICY"), defaultPolicy)
	if err != nil {
		return nil, err
	}
	filePolicy, err := parseUploadPolicy(os.Getenv("COLDSTART_FILE_UPLOAD_POLICY"), defaultPolicy)
	if err != nil {
		return nil, err
	}

	remoteTimeout := DefaultRemoteTimeout
	if raw := strings.TrimSpace(os.Getenv("COLDSTART_REMOTE_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse COLDSTART_REMOTE_TIMEOUT: %w", err)
		}
		remoteTimeout = parsed
	}

	cfg := &Config{
		ProjectName: "cold-start-marketplace",
		Addr:        firstNonEmpty(os.Getenv("COLDSTART_ADDR"), DefaultAddr),
		APIVersion:  normalizePrefix(firstNonEmpty(os.Getenv("COLDSTART_API_VERSION"), DefaultAPIVersion)),
		LogLevel:    strings.TrimSpace(os.Getenv("COLDSTART_LOG_LEVEL")),
		LogFormat:   strings.TrimSpace(os.Getenv("COLDSTART_LOG_FORMAT")),

		CORSOrigins: resolveOrigins(os.Getenv("CORS_ORIGINS")),

		DatabaseURI: strings.TrimSpace(os.Getenv("DATABASE_URI")),
		DatabaseKey: strings.TrimSpace(os.Getenv("DATABASE_KEY")),
		DatabaseID:  strings.TrimSpace(os.Getenv("DATABASE_ID")),

		StorageAccountName:      strings.TrimSpace(os.Getenv("STORAGE_ACCOUNT_NAME")),
		StorageAccountKey:       strings.TrimSpace(os.Getenv("STORAGE_ACCOUNT_KEY")),
		StorageConnectionString: strings.TrimSpace(os.Getenv("STORAGE_CONNECTION_STRING")),
		StoragePublicEndpoint:   strings.TrimSpace(os.Getenv("STORAGE_PUBLIC_ENDPOINT")),
		StorageRegion:           firstNonEmpty(os.Getenv("COLDSTART_STORAGE_REGION"), DefaultStorageRegion),

		ImageUploadPolicy: imagePolicy,
		FileUploadPolicy:  filePolicy,

		RemoteTimeout: remoteTimeout,

		CredentialsLoaded: credentialsLoaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing required connection setting. Any error
// here is fatal to startup.
func (c *Config) Validate() error {
	missing := make([]string, 0, 6)
	if c.DatabaseURI == "" {
		missing = append(missing, "DATABASE_URI")
	}
	if c.DatabaseKey == "" {
		missing = append(missing, "DATABASE_KEY")
	}
	if c.DatabaseID == "" {
		missing = append(missing, "DATABASE_ID")
	}
	if c.StorageAccountName == "" {
		missing = append(missing, "STORAGE_ACCOUNT_NAME")
	}
	if c.StorageAccountKey == "" {
		missing = append(missing, "STORAGE_ACCOUNT_KEY")
	}
	if c.StorageConnectionString == "" {
		missing = append(missing, "STORAGE_CONNECTION_STRING")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseUploadPolicy(raw string, fallback UploadPolicy) (UploadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return fallback, nil
	case string(UploadPolicySync):
		return UploadPolicySync, nil
	case string(UploadPolicyQueued):
		return UploadPolicyQueued, nil
	default:
		return "", fmt.Errorf("unsupported upload policy %q", raw)
	}
}

func resolveOrigins(raw string) []string {
	origins := splitAndTrim(raw)
	if len(origins) == 0 {
		return []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	return origins
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
