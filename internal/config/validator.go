package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if provider != "openai" {
		return nil // local providers need no key
	}
	if key == "" {
		return fmt.Errorf("openai API key cannot be empty")
	}
	if !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
	}
	return nil
}

// ValidateBaseURL validates an embedding endpoint URL
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil // Use provider default
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL: %s", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https, got %s", u.Scheme)
	}
	return nil
}

// ValidateDimension validates an embedding dimension
func (v *Validator) ValidateDimension(dim int) error {
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if dim > 8192 {
		return fmt.Errorf("embedding dimension too large (max 8192), got %d", dim)
	}
	return nil
}

// ValidateModel validates an embedding model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateAPIKey(cfg.Embedding.APIKey, cfg.Embedding.Provider); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateBaseURL(cfg.Embedding.BaseURL); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateDimension(cfg.Embedding.Dimension); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateModel(cfg.Embedding.Model); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
