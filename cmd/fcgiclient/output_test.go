package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/vmihailenco/msgpack/v5"
)

func TestNewPrinterFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "msgpack"} {
		if _, err := newPrinter(format, false, nil, nil); err != nil {
			t.Errorf("%s: %v", format, err)
		}
	}
	if _, err := newPrinter("yaml", false, nil, nil); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestPrintText(t *testing.T) {
	resp := &fcgi.Response{
		Stdout: []byte("Content-Type: text/plain\r\nStatus: 404 Not Found\r\n\r\nmissing"),
		Stderr: []byte("PHP Notice: x\n"),
	}

	testCases := []struct {
		name       string
		parse      bool
		wantStdout string
		wantStderr []string
	}{
		{"raw", false, string(resp.Stdout), []string{"PHP Notice: x"}},
		{"parsed", true, "missing", []string{"PHP Notice: x", "404 Not Found", "Content-Type: text/plain"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			p, err := newPrinter("text", tc.parse, &stdout, &stderr)
			if err != nil {
				t.Fatal(err)
			}
			if err := p.print(resp, 10); err != nil {
				t.Fatal(err)
			}
			if stdout.String() != tc.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout.String(), tc.wantStdout)
			}
			for _, want := range tc.wantStderr {
				if !strings.Contains(stderr.String(), want) {
					t.Errorf("stderr %q does not contain %q", stderr.String(), want)
				}
			}
		})
	}
}

func TestPrintStructured(t *testing.T) {
	resp := &fcgi.Response{
		Stdout:         []byte("Location: /login\n\n"),
		AppStatus:      3,
		ProtocolStatus: fcgi.StatusRequestComplete,
	}

	var out bytes.Buffer
	p, _ := newPrinter("json", true, &out, nil)
	if err := p.print(resp, 42); err != nil {
		t.Fatal(err)
	}
	var r result
	if err := json.Unmarshal(out.Bytes(), &r); err != nil {
		t.Fatal(err)
	}
	if r.Status != 302 || r.Header.Get("Location") != "/login" || r.AppStatus != 3 || r.TimeTaken != 42 {
		t.Errorf("unexpected json result %+v", r)
	}
	if r.Stdout != "" {
		t.Errorf("parsed output kept raw stdout %q", r.Stdout)
	}

	out.Reset()
	p, _ = newPrinter("msgpack", false, &out, nil)
	if err := p.print(resp, 42); err != nil {
		t.Fatal(err)
	}
	var m result
	if err := msgpack.Unmarshal(out.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.Stdout != string(resp.Stdout) || m.ProtocolStatus != fcgi.StatusRequestComplete.String() {
		t.Errorf("unexpected msgpack result %+v", m)
	}
}

func TestPrintRejectsBadCGIOutput(t *testing.T) {
	var out bytes.Buffer
	p, _ := newPrinter("text", true, &out, &out)
	if err := p.print(&fcgi.Response{Stdout: []byte("no header end")}, 0); err == nil {
		t.Error("expected an error for unterminated headers")
	}
}
