package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/flowgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(msg string) *ExitError {
	return &ExitError{Code: 2, Message: msg}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("flowgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
FlowGridGo - A dataflow graph engine with undoable editing.

Usage:
  flowgridgo [options] [GRAPH_PATH]

Arguments:
  GRAPH_PATH
    Path to a graph file (.hcl or .json).

At least one of GRAPH_PATH, -api-port or -monitor-url is required.

Options:
`)
		flagSet.PrintDefaults()
	}

	graphFlag := flagSet.String("graph", "", "Path to the graph file.")
	gFlag := flagSet.String("g", "", "Path to the graph file (shorthand).")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Maximum concurrent thread group loops. 0 is unbounded.")
	privateFlag := flagSet.Bool("private-threads", false, "Give every node its own thread group.")
	pausedFlag := flagSet.Bool("paused", false, "Start with dispatching paused.")
	tickFlag := flagSet.Float64("tick", 0, "Default tick frequency in Hz for new counter nodes. 0 is manual.")
	apiPortFlag := flagSet.Int("api-port", 0, "Port for the HTTP control API. 0 is disabled.")
	monitorFlag := flagSet.String("monitor-url", "", "socket.io monitor URL. Empty is disabled.")
	dsnFlag := flagSet.String("postgres-dsn", "", "PostgreSQL DSN for named snapshots. Empty keeps them in memory.")
	snapDirFlag := flagSet.String("snapshot-dir", "", "Directory for named snapshots. Exclusive with -postgres-dsn.")
	otlpFlag := flagSet.String("otlp-endpoint", "", "OTLP HTTP collector host:port. Empty disables telemetry export.")
	runForFlag := flagSet.Duration("run-for", 0, "Stop after this long. 0 runs until interrupted.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError(err.Error())
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *graphFlag != "" {
		path = *graphFlag
	} else if *gFlag != "" {
		path = *gFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Graph path determined.", "path", path)

	if path == "" && *apiPortFlag == 0 && *monitorFlag == "" {
		slog.Debug("Nothing to run, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		GraphPath:      path,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
		Workers:        *workersFlag,
		PrivateThreads: *privateFlag,
		Paused:         *pausedFlag,
		TickFrequency:  *tickFlag,
		APIPort:        *apiPortFlag,
		MonitorURL:     *monitorFlag,
		PostgresDSN:    *dsnFlag,
		SnapshotDir:    *snapDirFlag,
		OTLPEndpoint:   *otlpFlag,
		RunFor:         *runForFlag,
	})
	if err != nil {
		return nil, false, usageError(err.Error())
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
