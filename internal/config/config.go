package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "1.0.0"

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	MaxRequestBodySize int64
	MaxImageBytes      int64
	MaxImagePixels     int64
	MaxConcurrent      int
	LogLevel           string

	// AllowedImageHosts restricts http(s) image fetches. Empty allows all.
	AllowedImageHosts []string

	// NSFW classifier
	NSFWThreshold   float64
	NSFWLoadModel   bool
	NSFWModelPath   string
	ONNXLibraryPath string
	ONNXThreads     int

	// Azure blob storage, optional
	AzureAccountName string
	AzureAccountKey  string
}

// fileConfig mirrors Config for the optional YAML overlay. Durations are
// strings so "10s" style values work.
type fileConfig struct {
	Host               string   `yaml:"host"`
	Port               string   `yaml:"port"`
	RequestTimeout     string   `yaml:"request_timeout"`
	ImageFetchTimeout  string   `yaml:"image_fetch_timeout"`
	MaxRequestBodySize int64    `yaml:"max_request_body_size"`
	MaxImageBytes      int64    `yaml:"max_image_bytes"`
	MaxImagePixels     int64    `yaml:"max_image_pixels"`
	MaxConcurrent      int      `yaml:"max_concurrent_analyses"`
	LogLevel           string   `yaml:"log_level"`
	AllowedImageHosts  []string `yaml:"allowed_image_hosts"`
	NSFW               nsfwFile `yaml:"nsfw"`
	Azure              struct {
		AccountName string `yaml:"account_name"`
		AccountKey  string `yaml:"account_key"`
	} `yaml:"azure"`
}

type nsfwFile struct {
	Threshold       *float64 `yaml:"threshold"`
	LoadModel       *bool    `yaml:"load_model"`
	ModelPath       string   `yaml:"model_path"`
	ONNXLibraryPath string   `yaml:"onnx_library_path"`
	Threads         int      `yaml:"threads"`
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "8080",
		RequestTimeout:     30 * time.Second,
		ImageFetchTimeout:  10 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		MaxImageBytes:      20 * 1024 * 1024,
		MaxImagePixels:     40_000_000,
		MaxConcurrent:      8,
		LogLevel:           "info",
		NSFWThreshold:      0.7,
		NSFWLoadModel:      true,
	}
}

// LoadFromEnv builds the configuration from defaults, then the YAML file named
// by CONFIG_FILE (if any), then environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", cfg.ImageFetchTimeout)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)
	cfg.MaxImageBytes = parseIntOrDefault("MAX_IMAGE_BYTES", cfg.MaxImageBytes)
	cfg.MaxImagePixels = parseIntOrDefault("MAX_IMAGE_PIXELS", cfg.MaxImagePixels)
	cfg.MaxConcurrent = int(parseIntOrDefault("MAX_CONCURRENT_ANALYSES", int64(cfg.MaxConcurrent)))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.AllowedImageHosts = parseListOrDefault("ALLOWED_IMAGE_HOSTS", cfg.AllowedImageHosts)
	cfg.NSFWThreshold = parseFloatOrDefault("NSFW_THRESHOLD", cfg.NSFWThreshold)
	cfg.NSFWLoadModel = parseBoolOrDefault("NSFW_LOAD_MODEL", cfg.NSFWLoadModel)
	cfg.NSFWModelPath = getEnvOrDefault("NSFW_MODEL_PATH", cfg.NSFWModelPath)
	cfg.ONNXLibraryPath = getEnvOrDefault("ONNXRUNTIME_LIB", cfg.ONNXLibraryPath)
	cfg.ONNXThreads = int(parseIntOrDefault("ONNX_THREADS", int64(cfg.ONNXThreads)))
	cfg.AzureAccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.AzureAccountName)
	cfg.AzureAccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.AzureAccountKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be > 0 (got %d)", c.MaxImageBytes)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)",
			c.RequestTimeout, c.ImageFetchTimeout)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_ANALYSES must be > 0 (got %d)", c.MaxConcurrent)
	}
	if math.IsNaN(c.NSFWThreshold) || c.NSFWThreshold < 0 || c.NSFWThreshold > 1 {
		return fmt.Errorf("NSFW_THRESHOLD must be within [0,1] (got %g)", c.NSFWThreshold)
	}
	if (c.AzureAccountName == "") != (c.AzureAccountKey == "") {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY must be set together")
	}
	return nil
}

// AzureEnabled reports whether blob storage credentials are configured.
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Host != "" {
		c.Host = fc.Host
	}
	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if fc.ImageFetchTimeout != "" {
		d, err := time.ParseDuration(fc.ImageFetchTimeout)
		if err != nil {
			return fmt.Errorf("image_fetch_timeout: %w", err)
		}
		c.ImageFetchTimeout = d
	}
	if fc.MaxRequestBodySize != 0 {
		c.MaxRequestBodySize = fc.MaxRequestBodySize
	}
	if fc.MaxImageBytes != 0 {
		c.MaxImageBytes = fc.MaxImageBytes
	}
	if fc.MaxImagePixels != 0 {
		c.MaxImagePixels = fc.MaxImagePixels
	}
	if len(fc.AllowedImageHosts) > 0 {
		c.AllowedImageHosts = fc.AllowedImageHosts
	}
	if fc.MaxConcurrent != 0 {
		c.MaxConcurrent = fc.MaxConcurrent
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.NSFW.Threshold != nil {
		c.NSFWThreshold = *fc.NSFW.Threshold
	}
	if fc.NSFW.LoadModel != nil {
		c.NSFWLoadModel = *fc.NSFW.LoadModel
	}
	if fc.NSFW.ModelPath != "" {
		c.NSFWModelPath = fc.NSFW.ModelPath
	}
	if fc.NSFW.ONNXLibraryPath != "" {
		c.ONNXLibraryPath = fc.NSFW.ONNXLibraryPath
	}
	if fc.NSFW.Threads != 0 {
		c.ONNXThreads = fc.NSFW.Threads
	}
	if fc.Azure.AccountName != "" {
		c.AzureAccountName = fc.Azure.AccountName
	}
	if fc.Azure.AccountKey != "" {
		c.AzureAccountKey = fc.Azure.AccountKey
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// parseListOrDefault splits a comma separated value, dropping empty items.
func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
