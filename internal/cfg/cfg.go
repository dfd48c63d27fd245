package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"simpleml/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	HTTPPort       int
	ModelPath      string
	DataPath       string
	SessionTTL     time.Duration
	MaxUploadBytes int64
	ProbThreshold  float64
	DefaultLang    string
	GenderColumn   string
	GradeColumn    string
	NameColumn     string
	DropColumns    []string
	MaxDisplay     int
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
}

type ConfigFile struct {
	Server struct {
		HTTPPort       int    `yaml:"httpPort"`
		MaxUploadBytes int64  `yaml:"maxUploadBytes"`
		RequestTimeout string `yaml:"requestTimeout"`
		DefaultLang    string `yaml:"defaultLang"`
	} `yaml:"server"`

	Model struct {
		Path          string  `yaml:"path"`
		ProbThreshold float64 `yaml:"probThreshold"`
		MaxDisplay    int     `yaml:"maxDisplay"`
	} `yaml:"model"`

	Columns struct {
		Gender string   `yaml:"gender"`
		Grade  string   `yaml:"grade"`
		Name   string   `yaml:"name"`
		Drop   []string `yaml:"drop"`
	} `yaml:"columns"`

	Sessions struct {
		DataPath string `yaml:"dataPath"`
		TTL      string `yaml:"ttl"`
	} `yaml:"sessions"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads .env (if present), then CONFIG_FILE when set, otherwise the
// environment alone. Environment variables always win over YAML values.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	ttl, err := time.ParseDuration(config.Sessions.TTL)
	if err != nil {
		ttl = 30 * time.Minute
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = 30 * time.Second
	}

	settings := Settings{
		HTTPPort:       getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.HTTPPort, common.DefaultHTTPPort),
		ModelPath:      getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		DataPath:       getEnvOrDefault(common.EnvDataPath, orDefault(config.Sessions.DataPath, common.DefaultDataPath)),
		SessionTTL:     getDurationOrDefault(common.EnvSessionTTL, ttl),
		MaxUploadBytes: getInt64FromEnvOrConfig(common.EnvMaxUploadBytes, config.Server.MaxUploadBytes, common.DefaultMaxUploadBytes),
		ProbThreshold:  getFloatFromEnvOrConfig(common.EnvProbThreshold, config.Model.ProbThreshold, common.DefaultProbThreshold),
		DefaultLang:    getEnvOrDefault(common.EnvDefaultLang, orDefault(config.Server.DefaultLang, common.DefaultLang)),
		GenderColumn:   getEnvOrDefault(common.EnvGenderColumn, orDefault(config.Columns.Gender, common.DefaultGenderColumn)),
		GradeColumn:    getEnvOrDefault(common.EnvGradeColumn, orDefault(config.Columns.Grade, common.DefaultGradeColumn)),
		NameColumn:     getEnvOrDefault(common.EnvNameColumn, orDefault(config.Columns.Name, common.DefaultNameColumn)),
		DropColumns:    getListFromEnvOrConfig(common.EnvDropColumns, config.Columns.Drop, common.DefaultDropColumns),
		MaxDisplay:     getIntFromEnvOrConfig(common.EnvMaxDisplay, config.Model.MaxDisplay, common.DefaultMaxDisplay),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:      getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat)),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		HTTPPort:       getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		ModelPath:      getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		DataPath:       getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		SessionTTL:     getDurationOrDefault(common.EnvSessionTTL, 30*time.Minute),
		MaxUploadBytes: getInt64OrDefault(common.EnvMaxUploadBytes, common.DefaultMaxUploadBytes),
		ProbThreshold:  getFloatOrDefault(common.EnvProbThreshold, common.DefaultProbThreshold),
		DefaultLang:    getEnvOrDefault(common.EnvDefaultLang, common.DefaultLang),
		GenderColumn:   getEnvOrDefault(common.EnvGenderColumn, common.DefaultGenderColumn),
		GradeColumn:    getEnvOrDefault(common.EnvGradeColumn, common.DefaultGradeColumn),
		NameColumn:     getEnvOrDefault(common.EnvNameColumn, common.DefaultNameColumn),
		DropColumns:    splitOrDefault(os.Getenv(common.EnvDropColumns), common.DefaultDropColumns),
		MaxDisplay:     getIntOrDefault(common.EnvMaxDisplay, common.DefaultMaxDisplay),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:      getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, 30*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		out := make([]string, len(def))
		copy(out, def)
		return out
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getInt64OrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

func getListFromEnvOrConfig(key string, configValue, defaultValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, defaultValue)
	}
	if len(configValue) > 0 {
		return configValue
	}
	return splitOrDefault("", defaultValue)
}

// validateSettings performs range checks on every configuration value
func validateSettings(settings *Settings) error {
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}

	if settings.HTTPPort < 1024 || settings.HTTPPort > 65535 {
		return fmt.Errorf("HTTP port must be between 1024 and 65535, got %d", settings.HTTPPort)
	}
	if settings.SessionTTL < time.Minute || settings.SessionTTL > 24*time.Hour {
		return fmt.Errorf("session TTL must be between 1m and 24h, got %v", settings.SessionTTL)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 10*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 10m, got %v", settings.RequestTimeout)
	}
	if settings.MaxUploadBytes < 1024 || settings.MaxUploadBytes > 1<<30 {
		return fmt.Errorf("max upload size must be between 1KiB and 1GiB, got %d", settings.MaxUploadBytes)
	}
	// Zero leaves the choice to the model artifact.
	if settings.ProbThreshold < 0 || settings.ProbThreshold >= 1 {
		return fmt.Errorf("probability threshold must be 0 or between 0 and 1 (exclusive), got %f", settings.ProbThreshold)
	}
	if settings.MaxDisplay < 1 || settings.MaxDisplay > 100 {
		return fmt.Errorf("max display must be between 1 and 100, got %d", settings.MaxDisplay)
	}

	switch settings.DefaultLang {
	case common.LangEnglish, common.LangMalay:
	default:
		return fmt.Errorf("default language must be %q or %q, got %q", common.LangEnglish, common.LangMalay, settings.DefaultLang)
	}

	switch settings.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
