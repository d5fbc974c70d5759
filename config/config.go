package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`

	// Basis-URL des Citation-Backends (ohne abschließenden Slash)
	APIBaseURL      string        `envconfig:"API_BASE_URL" required:"true"`
	CitationTimeout time.Duration `envconfig:"CITATION_TIMEOUT" default:"300s"`
	HealthTimeout   time.Duration `envconfig:"HEALTH_TIMEOUT" default:"10s"`

	// Such-Session
	RotateInterval      time.Duration `envconfig:"ROTATE_INTERVAL" default:"3s"`
	CopyReset           time.Duration `envconfig:"COPY_RESET" default:"2s"`
	SearchOverlapPolicy string        `envconfig:"SEARCH_OVERLAP_POLICY" default:"cancel"`
	SessionMaxIdle      time.Duration `envconfig:"SESSION_MAX_IDLE" default:"30m"`
	RateLimitPerMinute  int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"10"`

	// Optional: Such-Protokoll in PostgreSQL
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	// Optional: Export des Such-Protokolls nach S3
	S3URL        string `envconfig:"S3_URL"`
	S3Region     string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Key        string `envconfig:"S3_KEY"`
	S3Secret     string `envconfig:"S3_SECRET"`
	S3Bucket     string `envconfig:"S3_BUCKET"`
	KeepBackups  int    `envconfig:"KEEP_BACKUPS" default:"4"`
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 0 * * *"`

	GitHubURL string `envconfig:"GITHUB_URL" default:"https://github.com/rossheat/citesearch"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// SearchLogEnabled meldet, ob eine Datenbank für das Such-Protokoll konfiguriert ist.
func (c *Config) SearchLogEnabled() bool {
	return c.DBHost != ""
}

// ExportEnabled meldet, ob der S3-Export konfiguriert ist.
func (c *Config) ExportEnabled() bool {
	return c.S3URL != "" && c.S3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
