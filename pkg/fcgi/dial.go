package fcgi

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Dial connects to a FastCGI application and wraps the stream in a Conn.
// network is "tcp", "tcp4", "tcp6" or "unix".
func Dial(ctx context.Context, network, address string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, wrapErr(KindIO, "dial", 0, err)
	}
	return NewConn(nc, opts...), nil
}

// DialTimeout is Dial with a connect deadline.
func DialTimeout(network, address string, timeout time.Duration, opts ...Option) (*Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Dial(ctx, network, address, opts...)
}

// ParseAddress splits an application address of the form "unix:/run/php.sock",
// "unix:///run/php.sock", "tcp://127.0.0.1:9000" or "127.0.0.1:9000" into a
// network and an address for Dial. A bare path is a unix socket.
func ParseAddress(addr string) (network, address string, err error) {
	switch {
	case addr == "":
		return "", "", fmt.Errorf("fcgi: empty address")
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	case strings.HasPrefix(addr, "unix:"):
		return "unix", strings.TrimPrefix(addr, "unix:"), nil
	case strings.HasPrefix(addr, "tcp://"):
		addr = strings.TrimPrefix(addr, "tcp://")
	case strings.HasPrefix(addr, "/"), strings.HasPrefix(addr, "./"):
		return "unix", addr, nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", "", fmt.Errorf("fcgi: invalid address %q: %w", addr, err)
	}
	return "tcp", addr, nil
}
