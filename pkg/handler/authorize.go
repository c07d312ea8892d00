package handler

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/glauth/iamldap/pkg/config"
)

const (
	rootDN  = "cn=root"
	localDN = "cn=local"
)

// ErrNoPeerCredentials is returned when a connection carries no peer identity
var ErrNoPeerCredentials = errors.New("no peer credentials")

// PeerCredentialsFunc resolves the uid and gid of the peer of a connection
type PeerCredentialsFunc func(conn net.Conn) (uid int, gid int, err error)

// rootSessions records the connections whose latest bind was a successful
// cn=root bind. The library keeps its bound DN across failed rebinds.
type rootSessions struct {
	conns sync.Map
}

func (r *rootSessions) grant(conn net.Conn) {
	if conn != nil {
		r.conns.Store(conn, struct{}{})
	}
}

func (r *rootSessions) revoke(conn net.Conn) {
	if conn != nil {
		r.conns.Delete(conn)
	}
}

func (r *rootSessions) granted(conn net.Conn) bool {
	if conn == nil {
		return false
	}
	_, ok := r.conns.Load(conn)
	return ok
}

func normalizeDN(dn string) string {
	return strings.ToLower(strings.TrimSpace(dn))
}

// authorize decides whether a search may go ahead. Local listeners trust the
// kernel reported peer identity, network listeners require the root bind.
func (h *iamHandler) authorize(boundDN string, conn net.Conn, dir *config.Directory) error {
	if h.local {
		uid, gid, err := h.peerCredentials(conn)
		if err != nil {
			h.log.Warn().Err(err).Msg("unable to read peer credentials")
			return fmt.Errorf("%w: %w", ErrInsufficientAccess, err)
		}

		if (dir.RequireUID != nil && *dir.RequireUID == uid) ||
			(dir.RequireGID != nil && *dir.RequireGID == gid) {
			return nil
		}

		h.log.Warn().Int("uid", uid).Int("gid", gid).Msg("UID or GID mismatch")
		return fmt.Errorf("%w: uid %d gid %d", ErrInsufficientAccess, uid, gid)
	}

	if normalizeDN(boundDN) != rootDN || !h.roots.granted(conn) {
		h.log.Warn().Str("binddn", boundDN).Msg("user not bound or insufficient rights, try as cn=root")
		return fmt.Errorf("%w: bound as %q", ErrInsufficientAccess, boundDN)
	}

	return nil
}
