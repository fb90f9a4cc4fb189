package fcgi

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseAddress(t *testing.T) {
	testCases := []struct {
		input   string
		network string
		address string
		wantErr bool
	}{
		{"127.0.0.1:9000", "tcp", "127.0.0.1:9000", false},
		{"tcp://localhost:9000", "tcp", "localhost:9000", false},
		{"[::1]:9000", "tcp", "[::1]:9000", false},
		{"unix:/run/php/php-fpm.sock", "unix", "/run/php/php-fpm.sock", false},
		{"unix:///run/php/php-fpm.sock", "unix", "/run/php/php-fpm.sock", false},
		{"/run/php/php-fpm.sock", "unix", "/run/php/php-fpm.sock", false},
		{"localhost", "", "", true},
		{"", "", "", true},
	}

	for _, tc := range testCases {
		network, address, err := ParseAddress(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: unexpected error state %v", tc.input, err)
			continue
		}
		if network != tc.network || address != tc.address {
			t.Errorf("%q: got %s %s, want %s %s", tc.input, network, address, tc.network, tc.address)
		}
	}
}

func TestDialTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		for {
			rec, err := ReadRecord(nc)
			if err != nil {
				return
			}
			if rec.Type == TypeStdin && len(rec.Content) == 0 {
				WriteRecord(nc, TypeStdout, rec.RequestID, []byte("pong"))
				WriteRecord(nc, TypeEndRequest, rec.RequestID, make([]byte, 8))
			}
		}
	}()

	c, err := Dial(context.Background(), "tcp", ln.Addr().String(), WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := c.Execute(context.Background(), &Request{Params: ParamsFrom("REQUEST_METHOD", "GET")})
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Stdout) != "pong" {
		t.Errorf("stdout = %q", resp.Stdout)
	}
}
