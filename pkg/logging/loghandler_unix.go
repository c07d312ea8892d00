//go:build !windows

package logging

import (
	"io"
	"log/syslog"

	"github.com/rs/zerolog"
)

var dialSyslog = func() (zerolog.LevelWriter, error) {
	sl, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "iamldap")
	if err != nil {
		return nil, err
	}
	return zerolog.SyslogLevelWriter(sl), nil
}

func InitLogging(reqdebug bool, reqsyslog bool, reqstructlog bool) zerolog.Logger {
	var mainWriter io.Writer = consoleWriter(stderr, reqstructlog)

	if reqsyslog {
		sl, err := dialSyslog()
		if err == nil {
			mainWriter = zerolog.MultiLevelWriter(mainWriter, sl)
		} else {
			l := newLogger(mainWriter, reqdebug)
			l.Warn().Err(err).Msg("syslog unavailable, logging to stderr only")
		}
	}

	logr := newLogger(mainWriter, reqdebug)

	RewireLogging(logr)

	return logr
}
