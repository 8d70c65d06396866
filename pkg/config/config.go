// Package config loads relayer settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/prompt"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvGeminiAPIKey       = "GEMINI_API_KEY"
	EnvGeminiKeyFallback  = "GEMINI_KEY"
	EnvGeminiModel        = "GEMINI_MODEL"
	EnvGeminiBaseURL      = "GEMINI_BASE_URL"
	EnvGeminiTemperature  = "GEMINI_TEMPERATURE"
	EnvGeminiMaxTokens    = "GEMINI_MAX_TOKENS"
	EnvWebhookURL         = "SLACK_WEBHOOK_URL"
	EnvHTTPAddr           = "RELAYER_HTTP_ADDR"
	EnvReportTimezone     = "REPORT_TIMEZONE"
	EnvReportSignOff      = "REPORT_SIGN_OFF"
	EnvRequireSections    = "REQUIRE_SECTIONS"
	EnvInferenceTimeout   = "INFERENCE_TIMEOUT"
	EnvDeliveryTimeout    = "DELIVERY_TIMEOUT"
	EnvMaxUploadBytes     = "MAX_UPLOAD_BYTES"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFormat          = "LOG_FORMAT"
	DefaultHTTPAddr       = ":8080"
	DefaultMaxUploadBytes = 20 << 20
)

type Config struct {
	Gemini GeminiConfig `yaml:"gemini"`
	Slack  SlackConfig  `yaml:"slack"`
	Server ServerConfig `yaml:"server"`
	Report ReportConfig `yaml:"report"`
	Log    LogConfig    `yaml:"log"`

	location         *time.Location
	inferenceTimeout time.Duration
	deliveryTimeout  time.Duration
}

type GeminiConfig struct {
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	BaseURL          string `yaml:"base_url"`
	InferenceTimeout string `yaml:"inference_timeout"`

	// Temperature and MaxTokens are left to the provider default when nil.
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
}

type SlackConfig struct {
	WebhookURL      string `yaml:"webhook_url"`
	DeliveryTimeout string `yaml:"delivery_timeout"`
}

type ServerConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type ReportConfig struct {
	Timezone        string               `yaml:"timezone"`
	SignOff         string               `yaml:"sign_off"`
	RequireSections bool                 `yaml:"require_sections"`
	Glossary        []model.GlossaryTerm `yaml:"glossary"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file is only an error
// when required is true.
func LoadEnvFile(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return utils.WrapIfNotNil(err, "reading env file")
	}
	if err := godotenv.Load(path); err != nil {
		return utils.WrapIfNotNil(err, "loading env file")
	}
	return nil
}

// Load reads path (skipped when empty), applies environment overrides and
// defaults, then validates. Missing credentials or destination come back as
// model.KindConfigurationMissing.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, utils.WrapIfNotNil(err, "reading config file")
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, utils.WrapIfNotNil(err, "parsing config")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	apiKey := firstEnv(EnvGeminiAPIKey, EnvGeminiKeyFallback)
	overrideString(&c.Gemini.APIKey, apiKey)
	overrideString(&c.Gemini.Model, os.Getenv(EnvGeminiModel))
	overrideString(&c.Gemini.BaseURL, os.Getenv(EnvGeminiBaseURL))
	overrideString(&c.Gemini.InferenceTimeout, os.Getenv(EnvInferenceTimeout))
	overrideString(&c.Slack.WebhookURL, os.Getenv(EnvWebhookURL))
	overrideString(&c.Slack.DeliveryTimeout, os.Getenv(EnvDeliveryTimeout))
	overrideString(&c.Server.HTTPAddr, os.Getenv(EnvHTTPAddr))
	overrideString(&c.Report.Timezone, os.Getenv(EnvReportTimezone))
	overrideString(&c.Report.SignOff, os.Getenv(EnvReportSignOff))
	overrideString(&c.Log.Level, os.Getenv(EnvLogLevel))
	overrideString(&c.Log.Format, os.Getenv(EnvLogFormat))

	if raw := strings.TrimSpace(os.Getenv(EnvMaxUploadBytes)); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			return configError(fmt.Sprintf("%s must be a positive integer, got %q", EnvMaxUploadBytes, raw), err)
		}
		c.Server.MaxUploadBytes = value
	}
	if raw := strings.TrimSpace(os.Getenv(EnvGeminiTemperature)); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return configError(fmt.Sprintf("%s must be a number, got %q", EnvGeminiTemperature, raw), err)
		}
		c.Gemini.Temperature = &value
	}
	if raw := strings.TrimSpace(os.Getenv(EnvGeminiMaxTokens)); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return configError(fmt.Sprintf("%s must be an integer, got %q", EnvGeminiMaxTokens, raw), err)
		}
		c.Gemini.MaxTokens = &value
	}
	if raw := strings.TrimSpace(os.Getenv(EnvRequireSections)); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return configError(fmt.Sprintf("%s must be a boolean, got %q", EnvRequireSections, raw), err)
		}
		c.Report.RequireSections = value
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Gemini.InferenceTimeout == "" {
		c.Gemini.InferenceTimeout = "60s"
	}
	if c.Slack.DeliveryTimeout == "" {
		c.Slack.DeliveryTimeout = "15s"
	}
	if c.Report.Timezone == "" {
		c.Report.Timezone = prompt.DefaultLocationName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		return configError(fmt.Sprintf("Gemini API key is required (set %s)", EnvGeminiAPIKey), nil)
	}

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)
	if c.Slack.WebhookURL == "" {
		return configError(fmt.Sprintf("webhook URL is required (set %s)", EnvWebhookURL), nil)
	}
	parsed, err := url.Parse(c.Slack.WebhookURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return configError("webhook URL must be an absolute URL", err)
	}

	if t := c.Gemini.Temperature; t != nil && (*t < 0 || *t > 2) {
		return configError(fmt.Sprintf("temperature must be between 0 and 2, got %v", *t), nil)
	}
	if n := c.Gemini.MaxTokens; n != nil && *n <= 0 {
		return configError(fmt.Sprintf("max tokens must be positive, got %d", *n), nil)
	}

	c.inferenceTimeout, err = parsePositiveDuration("inference timeout", c.Gemini.InferenceTimeout)
	if err != nil {
		return err
	}
	c.deliveryTimeout, err = parsePositiveDuration("delivery timeout", c.Slack.DeliveryTimeout)
	if err != nil {
		return err
	}

	c.location, err = time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return configError(fmt.Sprintf("unknown report timezone %q", c.Report.Timezone), err)
	}
	return nil
}

func (c *Config) Location() *time.Location {
	return c.location
}

func (c *Config) InferenceTimeout() time.Duration {
	return c.inferenceTimeout
}

func (c *Config) DeliveryTimeout() time.Duration {
	return c.deliveryTimeout
}

// GeneratorOptions maps the Gemini section onto generator options.
func (c *Config) GeneratorOptions() []model.GeneratorOption {
	opts := []model.GeneratorOption{model.WithAuthToken(c.Gemini.APIKey)}
	if c.Gemini.Model != "" {
		opts = append(opts, model.WithModel(c.Gemini.Model))
	}
	if c.Gemini.BaseURL != "" {
		opts = append(opts, model.WithURL(c.Gemini.BaseURL))
	}
	if c.Gemini.Temperature != nil {
		opts = append(opts, model.WithTemperature(*c.Gemini.Temperature))
	}
	if c.Gemini.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*c.Gemini.MaxTokens))
	}
	return opts
}

func parsePositiveDuration(name string, raw string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, configError(fmt.Sprintf("invalid %s %q", name, raw), err)
	}
	if value <= 0 {
		return 0, configError(fmt.Sprintf("%s must be positive, got %q", name, raw), nil)
	}
	return value, nil
}

func configError(message string, err error) error {
	return model.NewError(model.KindConfigurationMissing, message, err)
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func overrideString(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}
