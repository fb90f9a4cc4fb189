package cgi

import (
	"strings"
	"testing"
)

func TestDefaultBuilder(t *testing.T) {
	p := Default().
		RequestMethod("POST").
		ScriptFilename("/var/www/index.php").
		QueryString("a=1").
		ContentType("application/x-www-form-urlencoded").
		ContentLength(11).
		ServerPort(8080).
		HTTPS(true).
		RedirectStatus(200).
		Params()

	want := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_SOFTWARE=fcgiclient",
		"SERVER_PROTOCOL=HTTP/1.1",
		"REQUEST_METHOD=POST",
		"SCRIPT_FILENAME=/var/www/index.php",
		"QUERY_STRING=a=1",
		"CONTENT_TYPE=application/x-www-form-urlencoded",
		"CONTENT_LENGTH=11",
		"SERVER_PORT=8080",
		"HTTPS=on",
		"REDIRECT_STATUS=200",
	}
	var got []string
	p.Each(func(name, value string) bool {
		got = append(got, name+"="+value)
		return true
	})
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("got\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestBuilderOverwrite(t *testing.T) {
	b := Default().ServerSoftware("php-test").HTTPS(true).HTTPS(false)
	if v, _ := b.Params().Get(ServerSoftware); v != "php-test" {
		t.Errorf("SERVER_SOFTWARE = %q", v)
	}
	if _, ok := b.Params().Get(HTTPS); ok {
		t.Error("HTTPS still set")
	}
	if b.Params().Len() != 3 {
		t.Errorf("expected 3 params, got %d", b.Params().Len())
	}
}

func TestBuilderHeader(t *testing.T) {
	p := NewBuilder().
		Header("User-Agent", "curl/8.0").
		Header("x-forwarded-for", "10.0.0.1").
		Header("X_Sneaky", "dropped").
		Header("Content-Type", "text/plain").
		Params()

	if v, _ := p.Get("HTTP_USER_AGENT"); v != "curl/8.0" {
		t.Errorf("HTTP_USER_AGENT = %q", v)
	}
	if v, _ := p.Get("HTTP_X_FORWARDED_FOR"); v != "10.0.0.1" {
		t.Errorf("HTTP_X_FORWARDED_FOR = %q", v)
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 params, got %d", p.Len())
	}
}
