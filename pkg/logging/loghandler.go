package logging

import (
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// We will use this package to wrap log messages coming from libraries who have no interest
// in generating structured output.

var (
	ldapliblogmatcher = regexp.MustCompile(`^\d{4}\/\d{1,2}\/\d{1,2} \d{1,2}\:\d{1,2}\:\d{1,2} `)

	stderr io.Writer = os.Stderr
)

func level(reqdebug bool) zerolog.Level {
	if reqdebug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func consoleWriter(out io.Writer, reqstructlog bool) io.Writer {
	if reqstructlog {
		// Vroom vroom
		zerolog.TimeFieldFormat = time.RFC1123Z
		return out
	}
	// This is the inefficient writer
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC1123Z}
}

func newLogger(w io.Writer, reqdebug bool) zerolog.Logger {
	return zerolog.New(w).Level(level(reqdebug)).With().Timestamp().Logger()
}

// RewireLogging sends the output of the standard logger, used by the LDAP
// library, through logr.
func RewireLogging(logr zerolog.Logger) {
	log.SetFlags(log.LstdFlags)
	log.SetOutput(customWriter{logr: logr})
}

type customWriter struct {
	logr zerolog.Logger
}

func (e customWriter) Write(p []byte) (int, error) {
	submatchall := ldapliblogmatcher.FindAllString(string(p), 1)
	var msg string
	for _, element := range submatchall {
		msg = strings.TrimSpace(string(p[len(element):]))
	}
	if msg == "" {
		msg = strings.TrimSpace(string(p))
	}
	e.logr.Info().Str("component", "ldap").Msg(msg)
	return len(p), nil
}
