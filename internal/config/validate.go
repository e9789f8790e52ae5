package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidationError lists the fields of a struct that failed their
// `validate` tags, keyed by field name.
type ValidationError struct {
	Fields map[string]string `json:"errors"`
}

// Error implements error with fields in sorted order.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks v against its `validate` struct tags. Field failures are
// returned as *ValidationError; anything else (e.g. a non-struct) is
// returned as is.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		if e.Param() != "" {
			fields[e.Field()] = fmt.Sprintf("failed on '%s=%s' tag", e.Tag(), e.Param())
			continue
		}
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return &ValidationError{Fields: fields}
}
