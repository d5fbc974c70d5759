package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://backend:8000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8000", cfg.APIBaseURL)
	assert.Equal(t, "4242", cfg.HTTPPort)
	assert.Equal(t, 300*time.Second, cfg.CitationTimeout)
	assert.Equal(t, 3*time.Second, cfg.RotateInterval)
	assert.Equal(t, 2*time.Second, cfg.CopyReset)
	assert.Equal(t, "cancel", cfg.SearchOverlapPolicy)
	assert.False(t, cfg.SearchLogEnabled())
	assert.False(t, cfg.ExportEnabled())
}

func TestLoad_MissingBaseURL(t *testing.T) {
	// t.Setenv stellt den alten Wert nach dem Test wieder her
	t.Setenv("API_BASE_URL", "unused")
	require.NoError(t, os.Unsetenv("API_BASE_URL"))

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "cite", DBPort: 5433}
	assert.Equal(t, "host=db user=u password=p dbname=cite port=5433 sslmode=disable", cfg.DSN())
	assert.True(t, cfg.SearchLogEnabled())
}
