package config

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Name  string `validate:"required"`
	Size  int    `validate:"gt=0"`
	Mode  string `validate:"oneof=reject truncate"`
	Extra string
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	if err := Validate(&sample{Name: "x", Size: 1, Mode: "reject"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	t.Parallel()

	err := Validate(&sample{Size: 0, Mode: "drop"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	for _, field := range []string{"Name", "Size", "Mode"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("missing field error for %s: %v", field, verr.Fields)
		}
	}
	if _, ok := verr.Fields["Extra"]; ok {
		t.Error("untagged field should not fail")
	}
	if !strings.Contains(verr.Fields["Mode"], "oneof") {
		t.Errorf("Mode message = %q", verr.Fields["Mode"])
	}
	if !strings.HasPrefix(err.Error(), "validation failed: Mode") {
		t.Errorf("error should list fields sorted: %q", err.Error())
	}
}
