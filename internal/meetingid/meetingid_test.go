package meetingid

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{
			name:     "eleven digits",
			input:    "81679270835",
			expected: "816 7927 0835",
		},
		{
			name:     "eleven digits from ledger sample",
			input:    "89020763746",
			expected: "890 2076 3746",
		},
		{
			name:     "ten digits",
			input:    "8902076374",
			expected: "890 207 6374",
		},
		{
			name:        "nine digits",
			input:       "890207637",
			expectError: true,
		},
		{
			name:        "twelve digits",
			input:       "816792708351",
			expectError: true,
		},
		{
			name:        "empty",
			input:       "",
			expectError: true,
		},
		{
			name:        "already spaced",
			input:       "816 7927 0835",
			expectError: true,
		},
		{
			name:        "letters",
			input:       "8167927083a",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Normalize(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error for %q, got %q", tt.input, result)
				}
				if !errors.Is(err, ErrInvalidIdentifier) {
					t.Errorf("Expected ErrInvalidIdentifier, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestFromInt(t *testing.T) {
	result, err := FromInt(81679270835)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result != "816 7927 0835" {
		t.Errorf("Expected %q, got %q", "816 7927 0835", result)
	}

	if _, err := FromInt(12345); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("Expected ErrInvalidIdentifier for short ID, got %v", err)
	}
}

func TestIsNormalized(t *testing.T) {
	if !IsNormalized("816 7927 0835") {
		t.Error("Expected spaced eleven digit ID to be normalized")
	}
	if !IsNormalized("890 207 6374") {
		t.Error("Expected spaced ten digit ID to be normalized")
	}
	if IsNormalized("81679270835") {
		t.Error("Expected raw ID not to be normalized")
	}
	if IsNormalized("8167 927 0835") {
		t.Error("Expected wrongly grouped ID not to be normalized")
	}
}
