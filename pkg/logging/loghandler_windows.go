//go:build windows
// +build windows

package logging

import (
	"github.com/rs/zerolog"
)

func InitLogging(reqdebug bool, reqsyslog bool, reqstructlog bool) zerolog.Logger {
	logr := newLogger(consoleWriter(stderr, reqstructlog), reqdebug)

	if reqsyslog {
		logr.Warn().Msg("syslog is not supported on windows")
	}

	RewireLogging(logr)

	return logr
}
