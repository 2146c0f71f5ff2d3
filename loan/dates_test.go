package loan_test

import (
	"encoding/json"
	"testing"

	"github.com/warp/loan-engine/loan"
)

func TestDate_UnmarshalJSON_AcceptsStringsAndNull(t *testing.T) {
	var parsed loan.Date
	if err := json.Unmarshal([]byte(`"2025-02-15"`), &parsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !parsed.Equal(d("2025-02-15")) {
		t.Errorf("parsed = %s, want 2025-02-15", parsed)
	}

	for _, raw := range []string{`""`, `null`} {
		var zero loan.Date
		if err := json.Unmarshal([]byte(raw), &zero); err != nil {
			t.Fatalf("Unmarshal %s: %v", raw, err)
		}
		if !zero.IsZero() {
			t.Errorf("Unmarshal %s = %s, want the zero date", raw, zero)
		}
	}
}

func TestDate_UnmarshalJSON_RejectsNonStringTokens(t *testing.T) {
	// A bare number or object in a date field must error, not panic.
	for _, raw := range []string{`5`, `20250215`, `true`, `{}`, `["2025-02-15"]`, `"2025-99-99"`} {
		var parsed loan.Date
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			t.Errorf("Unmarshal %s succeeded as %s, want an error", raw, parsed)
		}
	}
}
