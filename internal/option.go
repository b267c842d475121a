package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	// logOutput receives structured logs. MCP mode keeps stdout for the
	// protocol and logs to stderr instead.
	logOutput io.Writer
	// out receives command output such as query results.
	out io.Writer
	// outputFile, if set, replaces out with an atomically written file.
	outputFile string
}

func newApplication(opts []Option) *application {
	app := &application{
		version:   "dev",
		logOutput: os.Stdout,
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects structured logs.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithOutput redirects command output.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithOutputFile writes command output to path instead of the output writer.
func WithOutputFile(path string) Option {
	return func(a *application) {
		a.outputFile = path
	}
}
