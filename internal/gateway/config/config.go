package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const defaultUploadMaxBytes = 32 << 20

type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	UploadMaxBytes int64
	CatalogDSN     string
	Artifact       ArtifactConfig
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads .env, then flags from args, then environment overrides.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	port := fs.String("port", ":8081", "server port")
	baseURL := fs.String("public-base-url", "", "base URL used in upload references (defaults to http://localhost<port>)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		*port = envPort
	}
	if !strings.Contains(*port, ":") {
		*port = ":" + *port
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	maxBytes, err := parseUploadMaxBytes(os.Getenv("UPLOAD_MAX_BYTES"))
	if err != nil {
		return nil, err
	}

	public := strings.TrimRight(firstNonEmpty(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), strings.TrimSpace(*baseURL)), "/")
	if public == "" {
		public = "http://localhost" + *port
		if !strings.HasPrefix(*port, ":") {
			public = "http://" + *port
		}
	}

	return &Config{
		Port:           *port,
		Env:            env,
		PublicBaseURL:  public,
		UploadMaxBytes: maxBytes,
		CatalogDSN:     strings.TrimSpace(os.Getenv("CATALOG_PG_DSN")),
		Artifact:       loadArtifactConfig(env),
	}, nil
}

// parseUploadMaxBytes accepts plain byte counts or sizes such as "32MiB".
func parseUploadMaxBytes(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultUploadMaxBytes, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("UPLOAD_MAX_BYTES: %w", err)
	}
	if n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("UPLOAD_MAX_BYTES: %q out of range", raw)
	}
	return int64(n), nil
}

func loadArtifactConfig(env string) ArtifactConfig {
	cfg := ArtifactConfig{
		Endpoint:  resolveArtifactEndpoint(env),
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "formkit-uploads"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
	cfg.Enabled = cfg.Endpoint != "" && cfg.AccessKey != "" && cfg.SecretKey != ""
	return cfg
}

func resolveArtifactEndpoint(env string) string {
	if isLocal(env) {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT")), strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT")))
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if isLocal(env) {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func isLocal(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "local")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
