package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(512) 555-1234", "5125551234"},
		{"512-555-1234", "5125551234"},
		{"512.555.1234", "5125551234"},
		{"+1 512 555 1234", "+15125551234"},
		{"++44 20 7946 0958", "+442079460958"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{"(512) 555-1234", "+1 512 555 1234", "512.555.1234", "+44 (0)20 7946 0958"}
	for _, in := range inputs {
		once := NormalizePhone(in)
		assert.Equal(t, once, NormalizePhone(once), in)
	}
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		valid bool
	}{
		{"5125551234", true},
		{"+442079460958", true},
		{"1234567", true},
		{"123456", false},          // too short
		{"1234567890123456", false}, // too long
		{"5555555555", false},      // all same digit
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidPhone(tt.phone), tt.phone)
	}
}

func TestFormatPhoneDisplay(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5125551234", "(512) 555-1234"},
		{"512-555-1234", "(512) 555-1234"},
		{"15125551234", "+1 (512) 555-1234"},
		{"+15125551234", "+1 (512) 555-1234"},
		{"+442079460958", "+442079460958"},
		{"12345", "12345"}, // unformattable, passes through
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPhoneDisplay(tt.in), tt.in)
	}
}

func TestFormatPhoneDisplayRoundTrip(t *testing.T) {
	// Any input normalizing to exactly 10 digits renders in (AAA) BBB-CCCC shape.
	for _, in := range []string{"5125551234", "(512)555-1234", "512 555 1234", "512.555.1234"} {
		assert.Equal(t, "(512) 555-1234", FormatPhoneDisplay(in), in)
	}
}
