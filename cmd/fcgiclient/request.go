package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/bastiangx/fcgiclient/internal/utils"
	"github.com/bastiangx/fcgiclient/pkg/cgi"
	"github.com/bastiangx/fcgiclient/pkg/config"
	"github.com/bastiangx/fcgiclient/pkg/fcgi"
)

// requestFlags are the exec flags that shape the params and body.
type requestFlags struct {
	script      string
	method      string
	query       string
	contentType string
	data        string
	dataFile    string
	params      []string
	headers     []string
	passEnv     []string
}

// body is a request body that can be replayed for --repeat.
type body struct {
	data []byte
	file string
	size int64
}

func (b *body) source() (fcgi.BodySource, io.Closer, error) {
	if b.file == "" {
		return fcgi.Chunks(b.data), nil, nil
	}
	f, err := os.Open(b.file)
	if err != nil {
		return nil, nil, err
	}
	return fcgi.ReaderBody(f), f, nil
}

// loadBody resolves --data and --data-file. A regular file is streamed,
// "-" reads stdin into memory since CONTENT_LENGTH has to be known up front.
func loadBody(f *requestFlags, stdin io.Reader) (*body, error) {
	switch {
	case f.data != "" && f.dataFile != "":
		return nil, fmt.Errorf("--data and --data-file are mutually exclusive")
	case f.data != "":
		return &body{data: []byte(f.data), size: int64(len(f.data))}, nil
	case f.dataFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return &body{data: data, size: int64(len(data))}, nil
	case f.dataFile != "":
		info, err := os.Stat(f.dataFile)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			data, err := os.ReadFile(f.dataFile)
			if err != nil {
				return nil, err
			}
			return &body{data: data, size: int64(len(data))}, nil
		}
		return &body{file: f.dataFile, size: info.Size()}, nil
	}
	return &body{}, nil
}

// buildParams layers the params: CGI defaults, the config file, the request
// flags, passed environment and finally explicit --param values.
func buildParams(f *requestFlags, cfg *config.Config, b *body, env *cgi.Env) (*fcgi.Params, error) {
	if f.script == "" {
		return nil, fmt.Errorf("--script is required")
	}
	builder := cfg.Params.Apply(cgi.Default())

	scriptName := "/" + path.Base(f.script)
	uri := scriptName
	if f.query != "" {
		uri += "?" + f.query
	}
	builder.
		RequestMethod(f.method).
		ScriptFilename(f.script).
		ScriptName(scriptName).
		DocumentURI(scriptName).
		RequestURI(uri).
		QueryString(f.query).
		RemoteAddr("127.0.0.1").
		RedirectStatus(200)

	if b.size > 0 || f.method == "POST" || f.method == "PUT" || f.method == "PATCH" {
		builder.ContentLength(b.size)
		contentType := f.contentType
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
		builder.ContentType(contentType)
	}

	for _, h := range f.headers {
		name, value, ok := utils.SplitHeader(h)
		if !ok {
			return nil, fmt.Errorf("bad --header %q, want \"Name: value\"", h)
		}
		builder.Header(name, value)
	}
	if env != nil && len(f.passEnv) > 0 {
		env.Pass(builder, f.passEnv...)
	}
	for _, kv := range f.params {
		name, value, ok := utils.SplitPair(kv)
		if !ok {
			return nil, fmt.Errorf("bad --param %q, want NAME=value", kv)
		}
		builder.Set(name, value)
	}
	return builder.Params(), nil
}

// describe renders params one per line for debug logs.
func describe(p *fcgi.Params) string {
	var buf bytes.Buffer
	p.Each(func(name, value string) bool {
		buf.WriteString(name)
		buf.WriteByte('=')
		buf.WriteString(strconv.Quote(value))
		buf.WriteByte('\n')
		return true
	})
	return buf.String()
}
