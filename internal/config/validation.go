package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"scanlogd/internal/transaction"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("scanlogd-config.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig checks the configuration against the embedded schema and
// then applies the checks a schema cannot express.
func ValidateConfig(c *Config) error {
	if err := validateSchema(c); err != nil {
		return err
	}

	var errs ValidationErrors

	if c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateTransaction(&c.Transaction)...)
	errs = append(errs, validateNotify(&c.Notify)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSchema(c *Config) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return schemaErrors(verr)
		}
		return err
	}
	return nil
}

// schemaErrors flattens the schema error tree into field errors.
func schemaErrors(verr *jsonschema.ValidationError) ValidationErrors {
	var errs ValidationErrors
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(strings.ReplaceAll(e.InstanceLocation, "/", "."), ".")
			if field == "" {
				field = "(root)"
			}
			errs = append(errs, ValidationError{Field: field, Message: e.Message})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return errs
}

func validateTransaction(t *TransactionConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := transaction.ParseDirection(t.DefaultDirection); err != nil {
		errs = append(errs, ValidationError{Field: "transaction.default_direction", Message: err.Error()})
	}
	if t.AddCode == t.TakeCode {
		errs = append(errs, ValidationError{
			Field:   "transaction.add_code",
			Message: "add and take codes must differ",
		})
	}
	return errs
}

func validateNotify(n *NotifyConfig) ValidationErrors {
	var errs ValidationErrors

	if n.SoundFile == "" {
		return nil
	}
	if n.Player == "" {
		errs = append(errs, ValidationError{Field: "notify.player", Message: "required when sound_file is set"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	switch strings.ToLower(l.Output) {
	case "file", "both":
		if l.FilePath == "" {
			return ValidationErrors{{Field: "logging.file_path", Message: "required when output includes a file"}}
		}
	}
	return nil
}
