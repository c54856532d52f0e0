package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "graph only", cfg: Config{GraphPath: "g.hcl"}},
		{name: "api only", cfg: Config{APIPort: 8080}},
		{name: "monitor only", cfg: Config{MonitorURL: "ws://localhost:3000/socket.io/"}},
		{name: "nothing to run", cfg: Config{}, wantErr: "nothing to run"},
		{name: "negative workers", cfg: Config{GraphPath: "g.hcl", Workers: -1}, wantErr: "workers"},
		{name: "negative tick", cfg: Config{GraphPath: "g.hcl", TickFrequency: -2}, wantErr: "tick frequency"},
		{name: "port out of range", cfg: Config{APIPort: 70000}, wantErr: "api port"},
		{name: "negative run-for", cfg: Config{GraphPath: "g.hcl", RunFor: -time.Second}, wantErr: "run-for"},
		{name: "two snapshot stores", cfg: Config{APIPort: 1, PostgresDSN: "postgres://x", SnapshotDir: "snaps"}, wantErr: "mutually exclusive"},
		{name: "bad monitor scheme", cfg: Config{MonitorURL: "ftp://host"}, wantErr: "scheme"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cfg, *got)
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	logger := newLogger("warn", "text", &safeBuffer{})
	assert.False(t, logger.Handler().Enabled(t.Context(), -4))
	assert.True(t, logger.Handler().Enabled(t.Context(), 4))

	fallback := newLogger("loud", "json", &safeBuffer{})
	assert.True(t, fallback.Handler().Enabled(t.Context(), 0))
	assert.False(t, fallback.Handler().Enabled(t.Context(), -4))
}
