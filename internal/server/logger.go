package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omarluq/skin-relay/internal/config"
)

type ctxKey string

// RequestIDKey is the context key for request IDs.
const RequestIDKey ctxKey = "request_id"

// NewLogger creates a zerolog.Logger from LoggingConfig.
func NewLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	output, outputFile, err := selectOutput(cfg.Output)
	if err != nil {
		return zerolog.Logger{}, err
	}

	if shouldUsePretty(cfg, outputFile) {
		output = consoleWriter(output)
	}

	return zerolog.New(output).
		Level(cfg.ParseLevel()).
		With().
		Timestamp().
		Logger(), nil
}

func selectOutput(outputCfg string) (io.Writer, *os.File, error) {
	switch outputCfg {
	case "", "stdout":
		return os.Stdout, os.Stdout, nil
	case "stderr":
		return os.Stderr, os.Stderr, nil
	default:
		f, err := os.OpenFile(filepath.Clean(outputCfg), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output: %w", err)
		}
		return f, f, nil
	}
}

// shouldUsePretty: explicit Pretty or format "pretty" always wins, "json"
// never pretty-prints, anything else pretty-prints only on a terminal.
func shouldUsePretty(cfg config.LoggingConfig, outputFile *os.File) bool {
	if cfg.Pretty {
		return true
	}
	switch cfg.Format {
	case "pretty":
		return true
	case "json":
		return false
	default:
		return outputFile != nil && isatty.IsTerminal(outputFile.Fd())
	}
}

// consoleWriter renders one line per event. Events flagged with
// security_event get a [security] prefix so they stand out in a terminal.
func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           out,
		TimeFormat:    time.TimeOnly,
		FormatLevel:   formatLevel,
		FormatPrepare: markSecurityEvents,
		FormatMessage: func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		},
		FormatFieldName: func(i any) string {
			return ansiDim + fmt.Sprint(i) + "=" + ansiReset
		},
		FormatFieldValue: func(i any) string {
			return fmt.Sprint(i)
		},
		FormatErrFieldValue: func(i any) string {
			return ansiRed + fmt.Sprint(i) + ansiReset
		},
	}
}

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
	ansiRed   = "\033[31m"
)

var levelTags = map[zerolog.Level]string{
	zerolog.TraceLevel: "\033[34mTRC\033[0m",
	zerolog.DebugLevel: "\033[36mDBG\033[0m",
	zerolog.InfoLevel:  "\033[32mINF\033[0m",
	zerolog.WarnLevel:  "\033[33mWRN\033[0m",
	zerolog.ErrorLevel: "\033[31mERR\033[0m",
	zerolog.FatalLevel: "\033[35mFTL\033[0m",
	zerolog.PanicLevel: "\033[35mPNC\033[0m",
}

func formatLevel(i any) string {
	s, _ := i.(string)
	if lvl, err := zerolog.ParseLevel(s); err == nil {
		if tag, ok := levelTags[lvl]; ok {
			return tag
		}
	}
	return strings.ToUpper(s)
}

func markSecurityEvents(evt map[string]any) error {
	if flagged, _ := evt["security_event"].(bool); flagged {
		evt[zerolog.MessageFieldName] = "[security] " + fmt.Sprint(evt[zerolog.MessageFieldName])
		delete(evt, "security_event")
	}
	return nil
}

// AddRequestID stores requestID (a new UUID when empty) in ctx and on the
// context logger.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	logger := log.Ctx(ctx).With().Str("request_id", requestID).Logger()
	return logger.WithContext(ctx)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
