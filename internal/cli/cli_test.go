package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/app"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		want     *app.Config
		wantExit bool
		wantErr  string
	}{
		{
			name: "positional path with defaults",
			args: []string{"graph.hcl"},
			want: &app.Config{GraphPath: "graph.hcl", LogFormat: "json", LogLevel: "info"},
		},
		{
			name: "graph flag wins over positional",
			args: []string{"-graph", "a.hcl", "b.hcl"},
			want: &app.Config{GraphPath: "a.hcl", LogFormat: "json", LogLevel: "info"},
		},
		{
			name: "every option",
			args: []string{
				"-g", "g.json", "-log-format", "TEXT", "-log-level", "debug",
				"-workers", "4", "-private-threads", "-paused", "-tick", "2.5",
				"-api-port", "8080", "-monitor-url", "ws://localhost:3000/socket.io/",
				"-postgres-dsn", "postgres://localhost/flow", "-otlp-endpoint", "localhost:4318",
				"-run-for", "3s",
			},
			want: &app.Config{
				GraphPath: "g.json", LogFormat: "text", LogLevel: "debug",
				Workers: 4, PrivateThreads: true, Paused: true, TickFrequency: 2.5,
				APIPort: 8080, MonitorURL: "ws://localhost:3000/socket.io/",
				PostgresDSN: "postgres://localhost/flow", OTLPEndpoint: "localhost:4318",
				RunFor: 3 * time.Second,
			},
		},
		{
			name: "api only",
			args: []string{"-api-port", "9000"},
			want: &app.Config{APIPort: 9000, LogFormat: "json", LogLevel: "info"},
		},
		{name: "nothing to run prints usage", args: nil, wantExit: true},
		{name: "help", args: []string{"-h"}, wantExit: true},
		{name: "bad format", args: []string{"-log-format", "xml", "g.hcl"}, wantErr: "invalid log-format"},
		{name: "bad level", args: []string{"-log-level", "trace", "g.hcl"}, wantErr: "invalid log-level"},
		{name: "config validation", args: []string{"-workers", "-1", "g.hcl"}, wantErr: "workers"},
		{name: "exclusive stores", args: []string{"-postgres-dsn", "postgres://x", "-snapshot-dir", "s", "g.hcl"}, wantErr: "mutually exclusive"},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: "flag provided but not defined"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cfg, exit, err := Parse(tc.args, out)

			if tc.wantErr != "" {
				require.Error(t, err)
				var exitErr *ExitError
				require.True(t, errors.As(err, &exitErr))
				assert.Equal(t, 2, exitErr.Code)
				assert.Contains(t, exitErr.Message, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantExit, exit)
			if tc.wantExit {
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			assert.Equal(t, tc.want, cfg)
		})
	}
}
