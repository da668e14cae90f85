package exporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{name: "zero", input: 0, expected: "0.00"},
		{name: "integral value keeps two decimals", input: 13.4, expected: "13.40"},
		{name: "negative", input: -7.125, expected: "-7.13"},
		{name: "rounds to two decimals", input: 2.006, expected: "2.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatFloat(tt.input))
		})
	}
}

func TestFormatOptionalFloat(t *testing.T) {
	assert.Equal(t, "", formatOptionalFloat(nil))

	value := 42.0
	assert.Equal(t, "42.00", formatOptionalFloat(&value))
}

func TestFormatInt(t *testing.T) {
	assert.Equal(t, "7", formatInt(7))
	assert.Equal(t, "-3", formatInt(-3))
}
