package logging

import (
	"io"
	"os"
	"strings"

	"questbot/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. The returned closer releases
// the log file, if any.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		w, err := newRotatingWriter(cfg.File, cfg.MaxMB)
		if err != nil {
			return nil, err
		}
		output = zerolog.MultiLevelWriter(output, w)
		closer = w
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(output).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
	writer = output
	return closer, nil
}

var writer io.Writer = os.Stdout

// Writer returns the sink configured by Init, for components that log
// through another logger.
func Writer() io.Writer {
	return writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
