package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Jane.Doe@Example.COM ", "jane.doe@example.com", true},
		{"Jane <jane@example.com>", "jane@example.com", true},
		{"not-an-email", "", false},
		{"jane@localhost", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := Normalize(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", DisplayName("jane.doe+crm@example.com"))
	assert.Equal(t, "Ivan", DisplayName("ivan_1990@example.com"))
	assert.Equal(t, "", DisplayName("12345@example.com"))
}
