package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_ENV", "PUBLIC_BASE_URL", "UPLOAD_MAX_BYTES", "CATALOG_PG_DSN",
		"ARTIFACT_S3_ENDPOINT", "ARTIFACT_MINIO_ENDPOINT", "ARTIFACT_S3_REGION",
		"ARTIFACT_S3_ACCESS_KEY", "ARTIFACT_S3_SECRET_KEY", "MINIO_ROOT_USER",
		"MINIO_ROOT_PASSWORD", "ARTIFACT_S3_BUCKET", "ARTIFACT_S3_USE_SSL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "http://localhost:8081", cfg.PublicBaseURL)
	assert.EqualValues(t, 32<<20, cfg.UploadMaxBytes)
	assert.Empty(t, cfg.CatalogDSN)
	assert.False(t, cfg.Artifact.Enabled)
	assert.Equal(t, "formkit-uploads", cfg.Artifact.Bucket)
	assert.Equal(t, "us-east-1", cfg.Artifact.Region)
}

func TestLoadFlagsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("UPLOAD_MAX_BYTES", "5MiB")
	t.Setenv("CATALOG_PG_DSN", " postgres://u:p@db/catalog ")
	cfg, err := Load([]string{"--port", ":7000", "--public-base-url", "https://forms.example/"})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "https://forms.example", cfg.PublicBaseURL)
	assert.EqualValues(t, 5<<20, cfg.UploadMaxBytes)
	assert.Equal(t, "postgres://u:p@db/catalog", cfg.CatalogDSN)
}

func TestLoadArtifactConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ROOT_USER", "formkit")
	t.Setenv("MINIO_ROOT_PASSWORD", "secret")
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.True(t, cfg.Artifact.Enabled)
	assert.Equal(t, "minio:9000", cfg.Artifact.Endpoint)
	assert.False(t, cfg.Artifact.UseSSL)

	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "s3.amazonaws.com")
	t.Setenv("ARTIFACT_S3_ACCESS_KEY", "ak")
	t.Setenv("ARTIFACT_S3_SECRET_KEY", "sk")
	t.Setenv("ARTIFACT_S3_USE_SSL", "not-a-bool")
	cfg, err = Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "s3.amazonaws.com", cfg.Artifact.Endpoint)
	assert.True(t, cfg.Artifact.UseSSL)
	assert.True(t, cfg.Artifact.Enabled)
}

func TestLoadRejectsBadUploadLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPLOAD_MAX_BYTES", "lots")
	_, err := Load(nil)
	assert.Error(t, err)

	t.Setenv("UPLOAD_MAX_BYTES", "0")
	_, err = Load(nil)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	clearEnv(t)
	_, err := Load([]string{"--nope"})
	assert.Error(t, err)
}
