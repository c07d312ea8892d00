package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// config file
type (
	// Directory holds everything needed to synthesize the directory tree.
	// These settings may be swapped at runtime when the config file changes.
	Directory struct {
		Domain     string
		BaseDN     string
		GroupName  string
		DefaultGID int
		LoginShell string
		HomePrefix string
		RequireUID *int // For local socket listeners only
		RequireGID *int // For local socket listeners only
		MaxPages   int
	}

	Bind struct {
		Secret       string
		SecretBcrypt string // hex encoded bcrypt hash, checked in addition to Secret
	}

	LDAP struct {
		Enabled    bool
		Listen     string // numeric port, host:port or unix socket path
		SocketMode string // octal file mode applied to a unix socket
	}

	LDAPS struct {
		Enabled   bool
		Listen    string
		Cert      string
		Key       string
		LegacyTLS bool
	}

	AWS struct {
		Region          string
		AccessKeyID     string
		SecretAccessKey string
		Endpoint        string
	}

	API struct {
		Cert      string
		Enabled   bool
		Internals bool
		Key       string
		Listen    string
		TLS       bool
	}

	Tracing struct {
		Enabled      bool
		GRPCEndpoint string
		HTTPEndpoint string
	}

	Config struct {
		API           API
		Directory     Directory
		Bind          Bind
		AWS           AWS
		LDAP          LDAP
		LDAPS         LDAPS
		Tracing       Tracing
		Debug         bool
		Syslog        bool
		StructuredLog bool
		WatchConfig   bool
		ConfigFile    string
	}
)

const (
	DefaultPort       = "1389"
	DefaultGID        = 500
	DefaultLoginShell = "/bin/bash"
	DefaultHomePrefix = "/home"
	DefaultMaxPages   = 1000
	DefaultSocketMode = "0775"
)

// DomainToBaseDN turns example.com into dc=example,dc=com
func DomainToBaseDN(domain string) string {
	parts := []string{}
	for _, dc := range strings.Split(domain, ".") {
		if dc == "" {
			continue
		}
		parts = append(parts, "dc="+strings.ToLower(dc))
	}
	return strings.Join(parts, ",")
}

// IsLocalSocket reports whether a listen address names a unix socket rather than
// a network port.
func IsLocalSocket(listen string) bool {
	if listen == "" {
		return false
	}
	if _, err := strconv.Atoi(listen); err == nil {
		return false
	}
	if _, _, err := net.SplitHostPort(listen); err == nil {
		return false
	}
	return true
}

// ListenAddress returns the network and address to hand to net.Listen.
func ListenAddress(listen string) (network string, address string) {
	if IsLocalSocket(listen) {
		return "unix", listen
	}
	if _, err := strconv.Atoi(listen); err == nil {
		return "tcp", ":" + listen
	}
	return "tcp", listen
}

// ParseSocketMode parses an octal mode such as "0775"
func ParseSocketMode(mode string) (uint32, error) {
	if mode == "" {
		mode = DefaultSocketMode
	}
	m, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid socket mode %q: %w", mode, err)
	}
	return uint32(m), nil
}
