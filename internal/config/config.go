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

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Engine    EngineConfig    `yaml:"engine"`
	Providers ProvidersConfig `yaml:"providers"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	APIKey      string `yaml:"api_key"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	// PublicURL is the base used to build operator-facing reference image URLs.
	// Empty means the client endpoint is used.
	PublicURL string `yaml:"public_url"`
}

// EngineConfig holds the orchestrator settings. It is copied by value into the
// engine at construction and never changes afterwards.
type EngineConfig struct {
	AcceptanceThreshold    float64       `yaml:"acceptance_threshold"`
	CandidateTimeout       time.Duration `yaml:"candidate_timeout"`
	ScanConcurrency        int           `yaml:"scan_concurrency"`
	MaxImagesPerEnrollment int           `yaml:"max_images_per_enrollment"`
	DuplicateDistance      float64       `yaml:"duplicate_distance"`
}

// ProvidersConfig selects the matching backend and carries the settings of each.
type ProvidersConfig struct {
	Provider  string          `yaml:"provider"`
	Local     LocalConfig     `yaml:"local"`
	Remote    RemoteConfig    `yaml:"remote"`
	Simulated SimulatedConfig `yaml:"simulated"`
}

type LocalConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	LibraryPath        string  `yaml:"library_path"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	DistanceThreshold  float64 `yaml:"distance_threshold"`
}

type RemoteConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	FaceIDTTL         time.Duration `yaml:"face_id_ttl"`
}

type SimulatedConfig struct {
	Label          string  `yaml:"label"`
	MatchThreshold float64 `yaml:"match_threshold"`
	Jitter         float64 `yaml:"jitter"`
	Seed           uint64  `yaml:"seed"`
	MinSide        int     `yaml:"min_side"`
}

type AuditConfig struct {
	Consumer string `yaml:"consumer"`
	Workers  int    `yaml:"workers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML file over the defaults, applies .env and environment
// variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// A missing .env file is fine.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings that would make the engine misbehave at request time.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Providers.Provider) {
	case "local", "remote", "simulated":
	default:
		errs = append(errs, fmt.Errorf("providers.provider: unknown provider %q", c.Providers.Provider))
	}
	if c.Engine.AcceptanceThreshold < 0 || c.Engine.AcceptanceThreshold > 100 {
		errs = append(errs, fmt.Errorf("engine.acceptance_threshold must be within [0,100], got %v", c.Engine.AcceptanceThreshold))
	}
	if c.Engine.ScanConcurrency < 1 {
		errs = append(errs, errors.New("engine.scan_concurrency must be positive"))
	}
	if c.Providers.Simulated.Jitter < 0 || c.Providers.Simulated.Jitter > 0.5 {
		errs = append(errs, fmt.Errorf("providers.simulated.jitter must be within [0,0.5], got %v", c.Providers.Simulated.Jitter))
	}
	if c.Providers.Simulated.MatchThreshold <= 0 || c.Providers.Simulated.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("providers.simulated.match_threshold must be within (0,1], got %v", c.Providers.Simulated.MatchThreshold))
	}
	if c.Providers.Local.DistanceThreshold <= 0 || c.Providers.Local.DistanceThreshold > 2 {
		errs = append(errs, fmt.Errorf("providers.local.distance_threshold must be within (0,2], got %v", c.Providers.Local.DistanceThreshold))
	}

	if strings.EqualFold(c.Providers.Provider, "remote") {
		r := c.Providers.Remote
		if r.Timeout <= 0 {
			errs = append(errs, errors.New("providers.remote.timeout must be positive"))
		}
		if r.RequestsPerSecond <= 0 || r.Burst < 1 {
			errs = append(errs, fmt.Errorf("providers.remote rate limit needs requests_per_second > 0 and burst >= 1, got %v/%d", r.RequestsPerSecond, r.Burst))
		}
	}
	if c.Audit.Workers < 1 {
		errs = append(errs, errors.New("audit.workers must be positive"))
	}

	return errors.Join(errs...)
}

// Default returns the built-in settings. Parse decodes YAML on top of it, so a
// key present in the file always wins, including an explicit zero.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			MetricsPort: 8082,
			MaxUploadMB: 32,
		},
		Database: DatabaseConfig{
			Port:     5432,
			MaxConns: 20,
		},
		MinIO: MinIOConfig{
			Bucket: "face-references",
		},
		Engine: EngineConfig{
			AcceptanceThreshold:    85,
			CandidateTimeout:       5 * time.Second,
			ScanConcurrency:        4,
			MaxImagesPerEnrollment: 10,
			DuplicateDistance:      0.35,
		},
		Providers: ProvidersConfig{
			Provider: "local",
			Local: LocalConfig{
				DetectionThreshold: 0.5,
				DistanceThreshold:  0.6,
			},
			Remote: RemoteConfig{
				Timeout:           10 * time.Second,
				RequestsPerSecond: 10,
				Burst:             5,
				// remote face handles expire after 24h
				FaceIDTTL: 23 * time.Hour,
			},
			Simulated: SimulatedConfig{
				Label:          "Local",
				MatchThreshold: 0.8,
				Jitter:         0.05,
				MinSide:        50,
			},
		},
		Audit: AuditConfig{
			Consumer: "audit-writers",
			Workers:  2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FG_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FG_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FG_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FG_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FG_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FG_PROVIDER"); v != "" {
		cfg.Providers.Provider = v
	}
	if v := os.Getenv("FG_ACCEPTANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.AcceptanceThreshold = f
		}
	}
	if v := os.Getenv("FG_MODELS_DIR"); v != "" {
		cfg.Providers.Local.ModelsDir = v
	}
	if v := os.Getenv("FG_ONNX_LIBRARY"); v != "" {
		cfg.Providers.Local.LibraryPath = v
	}
	if v := os.Getenv("FG_REMOTE_ENDPOINT"); v != "" {
		cfg.Providers.Remote.Endpoint = v
	}
	if v := os.Getenv("FG_REMOTE_API_KEY"); v != "" {
		cfg.Providers.Remote.APIKey = v
	}
	if v := os.Getenv("FG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
