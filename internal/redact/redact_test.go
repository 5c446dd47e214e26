package redact_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/scry-curator/internal/redact"
	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no sensitive data",
			input:    "candidate 42 rejected by gate schema",
			expected: "candidate 42 rejected by gate schema",
		},
		{
			name:     "connection URL",
			input:    "failed to connect to postgres://curator:s3cret@db:5432/scry",
			expected: "failed to connect to postgres://[REDACTED_CREDENTIAL]@db:5432/scry",
		},
		{
			name:     "postgresql scheme",
			input:    "dial POSTGRESQL://admin:pw@10.0.0.5/scry: timeout",
			expected: "dial POSTGRESQL://[REDACTED_CREDENTIAL]@10.0.0.5/scry: timeout",
		},
		{
			name:     "keyword connection string",
			input:    "host=db user=curator password=s3cret dbname=scry",
			expected: "host=db user=curator password=[REDACTED_CREDENTIAL] dbname=scry",
		},
		{
			name:     "operator email",
			input:    "UPDATE of approved rule blocked for editor@example.com",
			expected: "UPDATE of approved rule blocked for [REDACTED_EMAIL]",
		},
		{
			name:     "URL without credentials is untouched",
			input:    "postgres://db:5432/scry?sslmode=disable",
			expected: "postgres://db:5432/scry?sslmode=disable",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, redact.String(tt.input))
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", redact.Error(nil))

	err := fmt.Errorf("failed to ping database: %w",
		errors.New("cannot reach postgres://curator:s3cret@db/scry"))
	got := redact.Error(err)
	assert.NotContains(t, got, "s3cret")
	assert.Contains(t, got, "failed to ping database")
}
