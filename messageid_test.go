package analytics

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	id := newMessageID(now)

	assert.True(t, ValidMessageID(id))

	prefix, _, found := strings.Cut(id, "-")
	require.True(t, found)
	millis, err := strconv.ParseInt(prefix, 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), millis)
}

func TestValidMessageID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"well formed", "1717243200000-9f2c47d8-9a1b-4c3d-8e2f-0a1b2c3d4e5f", true},
		{"zero epoch", "0-9f2c47d8-9a1b-4c3d-8e2f-0a1b2c3d4e5f", true},
		{"empty", "", false},
		{"no dash", "1717243200000", false},
		{"non-numeric prefix", "abc-9f2c47d8-9a1b-4c3d-8e2f-0a1b2c3d4e5f", false},
		{"prefix overflows int64", "99999999999999999999-9f2c47d8-9a1b-4c3d-8e2f-0a1b2c3d4e5f", false},
		{"bad uuid", "1717243200000-not-a-uuid-at-all-x", false},
		{"uuid missing segment", "1717243200000-9f2c47d8-9a1b-4c3d-8e2f", false},
		{"bare uuid", "9f2c47d8-9a1b-4c3d-8e2f-0a1b2c3d4e5f", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidMessageID(tt.input))
		})
	}
}
