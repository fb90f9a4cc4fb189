package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// serveEcho answers each request with its params as NAME=value lines
// followed by the body. A request carrying HANG_UP=1 gets no answer and the
// connection is closed instead.
func serveEcho(nc net.Conn) {
	defer nc.Close()
	var params, stdin []byte
	for {
		rec, err := fcgi.ReadRecord(nc)
		if err != nil {
			return
		}
		switch rec.Type {
		case fcgi.TypeBeginRequest:
			params, stdin = nil, nil
		case fcgi.TypeParams:
			params = append(params, rec.Content...)
		case fcgi.TypeStdin:
			if len(rec.Content) > 0 {
				stdin = append(stdin, rec.Content...)
				continue
			}
			pairs, _ := fcgi.DecodeParams(params)
			var out bytes.Buffer
			for _, p := range pairs {
				if string(p.Name) == "HANG_UP" {
					return
				}
				fmt.Fprintf(&out, "%s=%s\n", p.Name, p.Value)
			}
			out.Write(stdin)
			fcgi.WriteRecord(nc, fcgi.TypeStdout, rec.RequestID, out.Bytes())
			fcgi.WriteRecord(nc, fcgi.TypeEndRequest, rec.RequestID, make([]byte, 8))
		}
	}
}

func echoDialer(dials *int, keep bool) Dialer {
	return func(ctx context.Context) (*fcgi.Conn, error) {
		*dials++
		client, app := net.Pipe()
		go serveEcho(app)
		return fcgi.NewConn(client, fcgi.WithKeepConn(keep), fcgi.WithLogger(log.New(io.Discard))), nil
	}
}

func encodeRequests(t *testing.T, reqs ...ExecRequest) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, r := range reqs {
		if err := enc.Encode(r); err != nil {
			t.Fatal(err)
		}
	}
	return &buf
}

func decodeResponses(t *testing.T, out *bytes.Buffer) []ExecResponse {
	t.Helper()
	dec := msgpack.NewDecoder(out)
	var ready StatusMessage
	if err := dec.Decode(&ready); err != nil || ready.Status != "ready" {
		t.Fatalf("ready frame: %+v, %v", ready, err)
	}
	var resps []ExecResponse
	for {
		var r ExecResponse
		if err := dec.Decode(&r); err != nil {
			if err == io.EOF {
				return resps
			}
			t.Fatalf("decode response: %v", err)
		}
		resps = append(resps, r)
	}
}

func TestGatewayKeepAlive(t *testing.T) {
	in := encodeRequests(t,
		ExecRequest{
			ID:     "req_001",
			Params: [][2]string{{"SCRIPT_FILENAME", "/x.php"}, {"REQUEST_METHOD", "POST"}},
			Body:   []byte("a=1"),
		},
		ExecRequest{ID: "req_002", Params: [][2]string{{"SCRIPT_FILENAME", "/y.php"}}},
	)
	var out bytes.Buffer
	dials := 0

	s := NewServer(echoDialer(&dials, true),
		WithIO(in, &out),
		WithBaseParams(fcgi.ParamsFrom("SERVER_SOFTWARE", "fcgiclient", "REQUEST_METHOD", "GET")),
		WithLogger(log.New(io.Discard)),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	resps := decodeResponses(t, &out)
	if len(resps) != 2 {
		t.Fatalf("got %d responses", len(resps))
	}
	want := []string{
		"SERVER_SOFTWARE=fcgiclient\nREQUEST_METHOD=POST\nSCRIPT_FILENAME=/x.php\na=1",
		"SERVER_SOFTWARE=fcgiclient\nREQUEST_METHOD=GET\nSCRIPT_FILENAME=/y.php\n",
	}
	for i, r := range resps {
		if r.Error != "" {
			t.Errorf("%s: %s", r.ID, r.Error)
		}
		if string(r.Stdout) != want[i] {
			t.Errorf("%s: stdout = %q, want %q", r.ID, r.Stdout, want[i])
		}
	}
	if resps[0].ID != "req_001" || resps[1].ID != "req_002" {
		t.Errorf("responses out of order: %s, %s", resps[0].ID, resps[1].ID)
	}
	if dials != 1 {
		t.Errorf("expected one connection for both requests, dialed %d", dials)
	}
}

func TestGatewaySingleShotDialsPerRequest(t *testing.T) {
	in := encodeRequests(t, ExecRequest{ID: "a"}, ExecRequest{ID: "b"}, ExecRequest{ID: "c"})
	var out bytes.Buffer
	dials := 0

	s := NewServer(echoDialer(&dials, false), WithIO(in, &out), WithLogger(log.New(io.Discard)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	resps := decodeResponses(t, &out)
	if len(resps) != 3 || dials != 3 {
		t.Errorf("got %d responses over %d connections", len(resps), dials)
	}
}

func TestGatewayRedialsAfterFailure(t *testing.T) {
	in := encodeRequests(t,
		ExecRequest{ID: "dies", Params: [][2]string{{"HANG_UP", "1"}}},
		ExecRequest{ID: "lives", Params: [][2]string{{"X", "y"}}},
	)
	var out bytes.Buffer
	dials := 0

	s := NewServer(echoDialer(&dials, true), WithIO(in, &out), WithLogger(log.New(io.Discard)))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	resps := decodeResponses(t, &out)
	if len(resps) != 2 {
		t.Fatalf("got %d responses", len(resps))
	}
	if resps[0].Kind != "unexpected eof" || resps[0].Error == "" {
		t.Errorf("first response: kind %q, error %q", resps[0].Kind, resps[0].Error)
	}
	if resps[1].Error != "" || string(resps[1].Stdout) != "X=y\n" {
		t.Errorf("second response: %+v", resps[1])
	}
	if dials != 2 {
		t.Errorf("dialed %d times, want 2", dials)
	}
}

func TestGatewayRejectsGarbage(t *testing.T) {
	in := bytes.NewReader([]byte{0xc1})
	var out bytes.Buffer
	dials := 0

	s := NewServer(echoDialer(&dials, true), WithIO(in, &out), WithLogger(log.New(io.Discard)))
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected a decode error")
	}
	resps := decodeResponses(t, &out)
	if len(resps) != 1 || !strings.Contains(resps[0].Error, "invalid msgpack") {
		t.Errorf("got %+v", resps)
	}
	if dials != 0 {
		t.Error("dialed without a valid request")
	}
}
