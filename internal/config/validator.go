package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers accessctl-specific validation
// rules. Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("register audit_output validator: %w", err)
	}
	return nil
}

// validateAuditOutput accepts "stdout", "database", or
// "file://<absolute-dir>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()
	switch output {
	case "stdout", "database":
		return true
	}
	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}
	return false
}

// Validate checks struct tags plus cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return errors.New("database.path is required with the sqlite driver")
	}
	if c.Database.Driver == "memory" && c.Audit.Output == "database" {
		return errors.New("audit.output 'database' requires the sqlite driver")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// actionable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout', 'database', or 'file://<absolute-dir>'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
