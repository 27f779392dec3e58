package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Message
}

// options given in the command line.
type options struct {
	configPath string
	logLevel   string
	logFormat  string
	verify     int
}

// parseArgs processes the command line. It returns whether the program should exit cleanly, when
// the help was requested.
func parseArgs(args []string, output io.Writer) (*options, bool, error) {
	flagSet := flag.NewFlagSet("vecadd", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
vecadd - builds C = A + B for a CUDA device with a raw C host, and prints the resulting modules.

Usage:
  vecadd [options]

The host source is written to mod.c in the current directory, unless the config file says otherwise.

Options:
`)
		flagSet.PrintDefaults()
	}

	opts := &options{}
	flagSet.StringVar(&opts.configPath, "config", "", "Path to an HCL file overriding the target, the schedule and the output file.")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flagSet.IntVar(&opts.verify, "verify", 0, "If > 0, run the compiled function on vectors of this size and check the result.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %q", flagSet.Args())}
	}

	opts.logFormat = strings.ToLower(opts.logFormat)
	if opts.logFormat != "text" && opts.logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	opts.logLevel = strings.ToLower(opts.logLevel)
	switch opts.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if opts.verify < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid verify: the size must not be negative"}
	}
	return opts, false, nil
}

// newLogger creates a logger writing to w, without changing the default one.
func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
