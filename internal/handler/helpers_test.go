package handler

import "testing"

func TestAtoiDefault_ValidInput(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"10", 5, 10},
		{"1", 0, 1},
		{"500", 100, 500},
	}

	for _, tt := range tests {
		result := atoiDefault(tt.input, tt.def)
		if result != tt.expected {
			t.Errorf("atoiDefault(%q, %d) = %d, expected %d", tt.input, tt.def, result, tt.expected)
		}
	}
}

func TestAtoiDefault_InvalidInput(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"", 100, 100},
		{"abc", 100, 100},
		{"0", 100, 100},
		{"-5", 100, 100},
		{"1.5", 100, 100},
	}

	for _, tt := range tests {
		result := atoiDefault(tt.input, tt.def)
		if result != tt.expected {
			t.Errorf("atoiDefault(%q, %d) = %d, expected %d", tt.input, tt.def, result, tt.expected)
		}
	}
}
