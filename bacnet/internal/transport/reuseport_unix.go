//go:build linux || darwin || freebsd

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// enableBroadcast sets SO_REUSEADDR and SO_BROADCAST on the connection's
// underlying socket. A device server binds the shared BACnet/IP port and
// must both allow address reuse (a second instance restarting before the
// OS reclaims the port) and accept/send broadcast datagrams for Who-Is and
// I-Am. The teacher's client role never needed either option.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("get raw conn: %w", err)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			sockErr = fmt.Errorf("set SO_REUSEADDR: %w", e)
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); e != nil {
			sockErr = fmt.Errorf("set SO_BROADCAST: %w", e)
			return
		}
	})
	if err != nil {
		return fmt.Errorf("control raw conn: %w", err)
	}
	return sockErr
}
