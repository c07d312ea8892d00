//go:build linux

package handler

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials reads the uid and gid of the process on the other end of a
// unix socket connection.
func PeerCredentials(conn net.Conn) (uid int, gid int, err error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return -1, -1, fmt.Errorf("%w: %T", ErrNoPeerCredentials, conn)
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return -1, -1, err
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return -1, -1, err
	}
	if credErr != nil {
		return -1, -1, fmt.Errorf("getsockopt SO_PEERCRED: %w", credErr)
	}

	return int(cred.Uid), int(cred.Gid), nil
}
