package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	_tls "github.com/glauth/iamldap/internal/tls"

	"github.com/glauth/iamldap/internal/monitoring"
	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/handler"
	"github.com/glauth/ldap"
)

const (
	rootBindRoute  = "cn=root"
	localBindRoute = "cn=local"
)

type LdapSvc struct {
	c       *config.Config
	l       *ldap.Server // plain LDAP, tcp or unix socket
	ls      *ldap.Server // LDAPS
	h       handler.Handler
	watcher *monitoring.LDAPMonitorWatcher

	ldapstls *tls.Config
	monitor  monitoring.MonitorInterface
	tracer   trace.Tracer
	log      zerolog.Logger

	mu      sync.Mutex
	socket  string
	serving map[*ldap.Server]bool
}

func NewServer(opts ...Option) (*LdapSvc, error) {
	options := newOptions(opts...)

	s := LdapSvc{
		log:     options.Logger,
		c:       options.Config,
		monitor: options.Monitor,
		tracer:  options.Tracer,
		serving: make(map[*ldap.Server]bool),
	}

	if s.c == nil {
		return nil, errors.New("no configuration given")
	}
	if options.Client == nil {
		return nil, errors.New("no IAM client given")
	}
	if options.Secret == nil {
		return nil, errors.New("no bind secret given")
	}
	if s.monitor == nil {
		return nil, errors.New("no monitor given")
	}

	local := s.c.LDAP.Enabled && config.IsLocalSocket(s.c.LDAP.Listen)

	s.h = handler.NewIAMHandler(
		handler.Logger(&s.log),
		handler.Directory(s.c.Directory),
		handler.Secret(options.Secret),
		handler.Client(options.Client),
		handler.Local(local),
		handler.PeerCredentialsReader(options.PeerCredentials),
		handler.Monitor(s.monitor),
		handler.Tracer(s.tracer),
		handler.Context(options.Context),
	)

	s.l = s.newLDAPServer()

	if tlsConfig := options.LDAPSTLSConfig; tlsConfig != nil {
		s.ldapstls = tlsConfig
		s.log.Info().
			Str("tls.min_version", tls.VersionName(tlsConfig.MinVersion)).
			Str("tls.max_version", tls.VersionName(tlsConfig.MaxVersion)).
			Interface("tls.cipher_suites", _tls.CipherSuiteNames(tlsConfig.CipherSuites)).
			Msg("enabling LDAPS")
		s.ls = s.newLDAPServer()
	}

	s.log.Info().
		Str("basedn", s.c.Directory.BaseDN).
		Str("group", s.c.Directory.GroupName).
		Bool("local", local).
		Msg("Loading IAM directory")

	s.watcher = monitoring.NewLDAPMonitorWatcher(s.stats(), s.monitor, &s.log)

	return &s, nil
}

func (s *LdapSvc) newLDAPServer() *ldap.Server {
	l := ldap.NewServer()
	l.EnforceLDAP = true

	// unknown bind DNs fall through to the library default, which refuses them
	l.BindFunc(rootBindRoute, s.h)
	l.BindFunc(localBindRoute, s.h)
	l.SearchFunc(s.c.Directory.BaseDN, s.h)
	l.CloseFunc("", s.h)

	return l
}

func (s *LdapSvc) stats() serverStats {
	if s.ls == nil {
		return serverStats{s.l}
	}
	return serverStats{s.l, s.ls}
}

// Reload applies new directory settings to subsequent requests
func (s *LdapSvc) Reload(dir config.Directory) {
	s.h.Reload(dir)
	s.log.Info().Str("group", dir.GroupName).Msg("directory settings reloaded")
}

// ListenAndServe listens on s.c.LDAP.Listen, which is either a network address
// or the path of a unix socket.
func (s *LdapSvc) ListenAndServe() error {
	network, address := config.ListenAddress(s.c.LDAP.Listen)

	var ln net.Listener
	var err error
	if network == "unix" {
		ln, err = s.listenUnix(address)
	} else {
		ln, err = net.Listen(network, address)
	}
	if err != nil {
		return err
	}

	s.log.Info().Str("network", network).Str("address", address).Msg("LDAP server listening")
	return s.Serve(ln)
}

// Serve answers LDAP requests on an existing listener until Shutdown
func (s *LdapSvc) Serve(ln net.Listener) error {
	return s.serve(s.l, ln)
}

func (s *LdapSvc) serve(l *ldap.Server, ln net.Listener) error {
	s.mu.Lock()
	if s.serving[l] {
		s.mu.Unlock()
		ln.Close()
		return errors.New("listener already running")
	}
	s.serving[l] = true
	s.mu.Unlock()

	return l.Serve(ln)
}

// ListenAndServeTLS listens on the TCP network address s.c.LDAPS.Listen
func (s *LdapSvc) ListenAndServeTLS() error {
	if s.ls == nil {
		return errors.New("LDAPS requested without a TLS configuration")
	}
	_, address := config.ListenAddress(s.c.LDAPS.Listen)
	s.log.Info().Str("address", address).Msg("LDAPS server listening")
	listener, err := tls.Listen("tcp", address, s.ldapstls)
	if err != nil {
		return err
	}
	return s.serve(s.ls, listener)
}

// listenUnix replaces any stale socket, then hands the new one to the
// required owner with the configured mode.
func (s *LdapSvc) listenUnix(path string) (net.Listener, error) {
	mode, err := config.ParseSocketMode(s.c.LDAP.SocketMode)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to remove stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	uid, gid := os.Getuid(), os.Getgid()
	if s.c.Directory.RequireUID != nil {
		uid = *s.c.Directory.RequireUID
	}
	if s.c.Directory.RequireGID != nil {
		gid = *s.c.Directory.RequireGID
	}

	if err := os.Chown(path, uid, gid); err != nil {
		s.log.Warn().Err(err).Int("uid", uid).Int("gid", gid).Str("socket", path).Msg("unable to change socket owner")
	}
	if err := os.Chmod(path, fs.FileMode(mode)); err != nil {
		ln.Close()
		return nil, fmt.Errorf("unable to change socket mode: %w", err)
	}

	s.mu.Lock()
	s.socket = path
	s.mu.Unlock()

	return ln, nil
}

// Shutdown ends listeners by sending true to the ldap serves quit channel
func (s *LdapSvc) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for l, running := range s.serving {
		if !running {
			continue
		}
		select {
		case l.Quit <- true:
		case <-time.After(time.Second):
			s.log.Warn().Msg("listener did not acknowledge shutdown")
		}
		s.serving[l] = false
	}

	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if s.socket != "" {
		if err := os.Remove(s.socket); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("socket", s.socket).Msg("unable to remove socket")
		}
		s.socket = ""
	}
}

// serverStats sums the counters of every LDAP server of the service
type serverStats []*ldap.Server

func (st serverStats) SetStats(enable bool) {
	for _, l := range st {
		l.SetStats(enable)
	}
}

func (st serverStats) GetStats() ldap.Stats {
	total := ldap.Stats{}
	for _, l := range st {
		s := l.GetStats()
		total.Conns += s.Conns
		total.Binds += s.Binds
		total.Unbinds += s.Unbinds
		total.Searches += s.Searches
	}
	return total
}
