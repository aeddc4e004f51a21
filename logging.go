package tftp

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// tidFormatter renders exactly "[<own-TID>] <message>\n", keeping logrus's
// structured fields available to anyone attaching a second,
// machine-readable formatter.
type tidFormatter struct {
	tid int
}

// Format implements logrus.Formatter.
func (f tidFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%d] %s\n", f.tid, entry.Message)
	return buf.Bytes(), nil
}

// Logger is the per-session logging facade: informational events go to
// stdout, errors and ERROR-packet events go to stderr, both lines prefixed
// "[<own-TID>] ".
type Logger struct {
	info *logrus.Logger
	errs *logrus.Logger
	tid  int

	// logBlocks gates per-block lines only; it does not silence session
	// lifecycle or error events (--disable-block-messages).
	logBlocks bool

	// infoOut, errOut and format are retained so ForTID can build a
	// sibling Logger for a newly bound own-TID without callers having to
	// thread the original construction arguments back through.
	infoOut, errOut io.Writer
	format          LogFormat
}

// LogFormat selects how a Logger renders entries. Text is the literal
// "[<tid>] message" line; JSON is an additive option for log-shipping
// setups that want structured output instead.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

func formatterFor(format LogFormat, tid int) logrus.Formatter {
	if format == LogFormatJSON {
		return &logrus.JSONFormatter{}
	}
	return tidFormatter{tid: tid}
}

// NewLogger builds a Logger prefixed with the given own-TID (this side's
// ephemeral or well-known port).
func NewLogger(ownTID int, logBlocks bool, format LogFormat) *Logger {
	return NewLoggerWithOutput(ownTID, logBlocks, os.Stdout, os.Stderr, format)
}

// NewLoggerWithOutput builds a Logger writing to the given writers instead
// of stdout/stderr, for embedding (or tests) that want to capture or
// discard output while keeping the same formatting contract.
func NewLoggerWithOutput(ownTID int, logBlocks bool, infoOut, errOut io.Writer, format LogFormat) *Logger {
	info := logrus.New()
	info.SetOutput(infoOut)
	info.SetFormatter(formatterFor(format, ownTID))
	info.SetLevel(logrus.InfoLevel)

	errs := logrus.New()
	errs.SetOutput(errOut)
	errs.SetFormatter(formatterFor(format, ownTID))
	errs.SetLevel(logrus.InfoLevel)

	return &Logger{
		info: info, errs: errs, tid: ownTID, logBlocks: logBlocks,
		infoOut: infoOut, errOut: errOut, format: format,
	}
}

// ForTID returns a sibling Logger writing to the same destinations in the
// same format, but prefixed with tid instead. Each Session builds one of
// these from its own socket's bound port, so the "[<own-TID>] " contract in
// §6 reflects that session's real ephemeral TID rather than the process's
// shared welcome-socket or client logger.
func (l *Logger) ForTID(tid int) *Logger {
	return NewLoggerWithOutput(tid, l.logBlocks, l.infoOut, l.errOut, l.format)
}

// Infof logs an informational line to stdout.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.info.WithField("tid", l.tid).Infof(format, args...)
}

// Blockf logs a per-block informational line to stdout, unless
// --disable-block-messages silenced it.
func (l *Logger) Blockf(format string, args ...interface{}) {
	if !l.logBlocks {
		return
	}
	l.info.WithField("tid", l.tid).Infof(format, args...)
}

// Errorf logs an error or ERROR-packet-event line to stderr.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.errs.WithField("tid", l.tid).Errorf(format, args...)
}

// WithFields returns a field-carrying info entry, for callers that want
// structured correlation (session_id, peer, ...) alongside the literal
// "[<tid>] " text contract.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.info.WithFields(fields)
}
