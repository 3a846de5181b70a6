package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		APIKey         string   `yaml:"apiKey"`
	} `yaml:"server"`

	Backend struct {
		BaseURL string        `yaml:"baseURL"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`

	Probe struct {
		Interval time.Duration `yaml:"interval"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"probe"`

	Storage Storage `yaml:"storage"`

	Log struct {
		Level string `yaml:"level"`
		Color bool   `yaml:"color"`
	} `yaml:"log"`
}

// Storage selects the key/value adapter. Driver is one of memory, file,
// keyring, mysql, postgres, minio.
type Storage struct {
	Driver  string `yaml:"driver"`
	Dir     string `yaml:"dir"`
	Service string `yaml:"service"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		Prefix     string `yaml:"prefix"`
	} `yaml:"minio"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	cfg.Backend.BaseURL = "http://localhost:8000"
	cfg.Backend.Timeout = 5 * time.Minute
	cfg.Probe.Interval = 10 * time.Second
	cfg.Probe.Timeout = 5 * time.Second
	cfg.Storage.Driver = "file"
	cfg.Storage.Dir = defaultDir()
	cfg.Storage.Service = "threat-analyzer"
	cfg.Storage.Database.SSLMode = "disable"
	cfg.Log.Level = "info"
	cfg.Log.Color = true
	return &cfg
}

func defaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "threat-analyzer")
	}
	return ".threat-analyzer"
}

// Load reads .env (if any), then the yaml file at path over the defaults, then
// THREAT_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, errors.Wrapf(err, "read %s", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"THREAT_BACKEND_URL":    &c.Backend.BaseURL,
		"THREAT_STORAGE_DRIVER": &c.Storage.Driver,
		"THREAT_STORAGE_DIR":    &c.Storage.Dir,
		"THREAT_DB_HOST":        &c.Storage.Database.Host,
		"THREAT_DB_USER":        &c.Storage.Database.User,
		"THREAT_DB_PASSWORD":    &c.Storage.Database.Password,
		"THREAT_DB_NAME":        &c.Storage.Database.Name,
		"THREAT_MINIO_ENDPOINT": &c.Storage.Minio.Endpoint,
		"THREAT_MINIO_ACCESS":   &c.Storage.Minio.AccessKey,
		"THREAT_MINIO_SECRET":   &c.Storage.Minio.SecretKey,
		"THREAT_MINIO_BUCKET":   &c.Storage.Minio.BucketName,
		"THREAT_LOG_LEVEL":      &c.Log.Level,
		"THREAT_API_KEY":        &c.Server.APIKey,
	}
	for k, p := range str {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*p = v
		}
	}

	if v := os.Getenv("THREAT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "THREAT_PORT %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("THREAT_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "THREAT_DB_PORT %q", v)
		}
		c.Storage.Database.Port = port
	}
	for k, p := range map[string]*time.Duration{
		"THREAT_BACKEND_TIMEOUT": &c.Backend.Timeout,
		"THREAT_PROBE_INTERVAL":  &c.Probe.Interval,
		"THREAT_PROBE_TIMEOUT":   &c.Probe.Timeout,
	} {
		if v := os.Getenv(k); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "%s %q", k, v)
			}
			*p = d
		}
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN.
func (s Storage) MySQLDSN() string {
	port := s.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		s.Database.User,
		s.Database.Password,
		s.Database.Host,
		port,
		s.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (s Storage) PostgresDSN() string {
	port := s.Database.Port
	if port == 0 {
		port = 5432
	}
	ssl := s.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Database.Host, port, s.Database.User, s.Database.Password, s.Database.Name, ssl)
}
