package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.RateLimit.Burst > 0 && cfg.RateLimit.RequestsPerSecond == 0 {
		return fmt.Errorf("rate_limit: burst is set but requests_per_second is 0")
	}

	if cfg.Storage.Type == "s3" {
		id, _ := cfg.Storage.S3["access_key_id"].(string)
		secret, _ := cfg.Storage.S3["secret_access_key"].(string)
		if (id == "") != (secret == "") {
			return fmt.Errorf("storage.s3: access_key_id and secret_access_key must be set together")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
