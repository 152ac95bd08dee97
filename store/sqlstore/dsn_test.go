package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	cases := []struct {
		name     string
		location string
		expect   string
	}{
		{"plain path", "/var/lib/media.db",
			"file:/var/lib/media.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
		{"memory untouched", ":memory:", ":memory:"},
		{"file memory untouched", "file::memory:?cache=shared", "file::memory:?cache=shared"},
		{"existing pragmas kept", "file:media.db?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(100)",
			"file:media.db?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(100)"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, buildDSN(tc.location, 5000))
		})
	}
}
