package handler

import (
	"net"

	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/ldap"
)

// Handler is the set of LDAP operations served for the directory
type Handler interface {
	ldap.Binder
	ldap.Searcher
	ldap.Closer

	// Reload swaps the directory settings used by subsequent requests
	Reload(dir config.Directory)
}

func remoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
