//go:build !linux

package handler

import (
	"fmt"
	"net"
	"runtime"
)

// PeerCredentials is only supported on linux, local requests are always refused elsewhere
func PeerCredentials(conn net.Conn) (uid int, gid int, err error) {
	return -1, -1, fmt.Errorf("%w: not supported on %s", ErrNoPeerCredentials, runtime.GOOS)
}
