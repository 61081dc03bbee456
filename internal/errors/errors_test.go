package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		CodeUnknown,
		CodeValidation,
		CodeTimeout,
		CodeCanceled,
		CodeNotFound,
		CodeConflict,
		CodeInvalidRange,
		CodeScanFailed,
		CodeDatabaseConnection,
		CodeDatabaseQuery,
		CodeDatabaseMigration,
	}

	for _, code := range codes {
		if string(code) == "" {
			t.Errorf("Error code %v should not be empty", code)
		}
	}
}

func TestRangeError(t *testing.T) {
	t.Run("message carries format help", func(t *testing.T) {
		err := NewRangeError("Invalid IP format.", "10.0.0")
		if !strings.HasPrefix(err.Error(), "Invalid IP format.") {
			t.Errorf("Expected message prefix, got %q", err.Error())
		}
		if !strings.Contains(err.Error(), "CIDR: 192.168.1.0/24") {
			t.Errorf("Expected format help in %q", err.Error())
		}
		if err.Input != "10.0.0" {
			t.Errorf("Expected input '10.0.0', got '%s'", err.Input)
		}
	})

	t.Run("wrapped range error", func(t *testing.T) {
		cause := fmt.Errorf("bad prefix")
		err := WrapRangeError("Invalid CIDR format.", "10.0.0.0/40", cause)
		if !errors.Is(err, cause) {
			t.Error("Should unwrap to original error")
		}
	})

	t.Run("detected through wrapping", func(t *testing.T) {
		err := fmt.Errorf("start scan: %w", NewRangeError("No IP range provided.", ""))
		if !IsRangeError(err) {
			t.Error("Expected wrapped RangeError to be detected")
		}
		if GetCode(err) != CodeInvalidRange {
			t.Errorf("Expected code %s, got %s", CodeInvalidRange, GetCode(err))
		}
	})
}

func TestScanError(t *testing.T) {
	t.Run("basic error creation", func(t *testing.T) {
		err := NewScanError(CodeScanFailed, "scan failed")
		if err.Code != CodeScanFailed {
			t.Errorf("Expected code %s, got %s", CodeScanFailed, err.Code)
		}
		if err.Error() != "[SCAN_FAILED] scan failed" {
			t.Errorf("Unexpected message %q", err.Error())
		}
	})

	t.Run("error with target", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeScanFailed, "scan aborted", "192.168.1.1")
		expected := "[SCAN_FAILED] scan aborted (target: 192.168.1.1)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("wrapped scan error", func(t *testing.T) {
		cause := fmt.Errorf("boom")
		err := WrapScanError(CodeTimeout, "scan did not stop", cause)
		if err.Unwrap() != cause {
			t.Error("Should unwrap to original error")
		}
		if !IsCode(err, CodeTimeout) {
			t.Errorf("Expected code %s, got %s", CodeTimeout, GetCode(err))
		}
	})
}

func TestDatabaseError(t *testing.T) {
	t.Run("database error with operation", func(t *testing.T) {
		err := NewDatabaseError(CodeDatabaseQuery, "query failed")
		err.Operation = "SELECT"
		expected := "[DATABASE_QUERY] query failed (operation: SELECT)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("wrapped database error", func(t *testing.T) {
		cause := fmt.Errorf("syntax")
		err := WrapDatabaseError(CodeDatabaseQuery, "query failed", cause)
		if !errors.Is(err, cause) {
			t.Error("Should unwrap to original error")
		}
	})
}

func TestConfigError(t *testing.T) {
	err := ErrConfigInvalid("scanning.concurrency", 0)
	expected := "[VALIDATION] Invalid configuration value (field: scanning.concurrency)"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
	if err.Value != 0 {
		t.Errorf("Expected value 0, got %v", err.Value)
	}
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"scan error match", NewScanError(CodeScanFailed, "x"), CodeScanFailed, true},
		{"scan error mismatch", NewScanError(CodeScanFailed, "x"), CodeTimeout, false},
		{"wrapped database error", fmt.Errorf("ctx: %w", ErrDatabaseConnection(nil)), CodeDatabaseConnection, true},
		{"config error", WrapConfigError(CodeValidation, "x", nil), CodeValidation, true},
		{"plain error", fmt.Errorf("plain"), CodeUnknown, true},
		{"nil error", nil, CodeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode() = %v, want %v", got, tt.want)
			}
		})
	}
}
