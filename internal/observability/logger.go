package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging. Secret material never goes
// through it; public keys and identifiers do.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a JSON logger writing to output (stderr when nil).
func NewLogger(service, version, level string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(output).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()

	return &Logger{logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// WithSession adds session_id context to logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithFlow adds flow context (create, import, unlock) to logger.
func (l *Logger) WithFlow(flow string) *Logger {
	return &Logger{logger: l.logger.With().Str("flow", flow).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// StateChanged logs a session state transition.
func (l *Logger) StateChanged(from, to string) {
	l.logger.Debug().
		Str("from", from).
		Str("to", to).
		Msg("session state changed")
}

// IdentityEstablished logs a successful create/import/unlock.
func (l *Logger) IdentityEstablished(publicKey, mode string) {
	l.logger.Info().
		Str("public_key", publicKey).
		Str("mode", mode).
		Msg("identity session established")
}

// BiometryBypassed records the reduced-security fallback. It is the audit
// trail for every session created without biometric confirmation.
func (l *Logger) BiometryBypassed(publicKey, reason string) {
	l.logger.Warn().
		Bool("audit", true).
		Str("public_key", publicKey).
		Str("reason", reason).
		Msg("biometric confirmation bypassed; private key protected by password only")
}

// FlowFailed logs a failed flow with its error class.
func (l *Logger) FlowFailed(class string, err error) {
	l.logger.Warn().
		Str("error_class", class).
		Err(err).
		Msg("identity flow failed")
}

// IdentityReset records an explicit account reset.
func (l *Logger) IdentityReset(publicKey string) {
	l.logger.Warn().
		Bool("audit", true).
		Str("public_key", publicKey).
		Msg("identity reset; encrypted private key destroyed")
}
