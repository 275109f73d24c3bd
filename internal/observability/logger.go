// Package observability provides logging, Prometheus metrics and filter
// statistics for the metadata-table service.
package observability

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// NewLogger returns a go-kit logger writing to stderr in format ("logfmt" or
// "json") that drops records below lvl.
func NewLogger(format, lvl string) (log.Logger, error) {
	return newLogger(os.Stderr, format, lvl)
}

func newLogger(w io.Writer, format, lvl string) (log.Logger, error) {
	var logger log.Logger
	switch format {
	case "", "logfmt":
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case "json":
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	var allow level.Option
	switch lvl {
	case "debug":
		allow = level.AllowDebug()
	case "", "info":
		allow = level.AllowInfo()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}

	logger = level.NewFilter(logger, allow)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	return logger, nil
}
