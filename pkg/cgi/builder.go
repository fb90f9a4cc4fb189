// Package cgi builds the CGI meta-variables a FastCGI responder expects and
// splits the CGI response it writes to FCGI_STDOUT.
package cgi

import (
	"strconv"

	"github.com/bastiangx/fcgiclient/internal/utils"
	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/charmbracelet/log"
)

// Standard meta-variable names.
const (
	GatewayInterface = "GATEWAY_INTERFACE"
	RequestMethod    = "REQUEST_METHOD"
	ScriptFilename   = "SCRIPT_FILENAME"
	ScriptName       = "SCRIPT_NAME"
	QueryString      = "QUERY_STRING"
	RequestURI       = "REQUEST_URI"
	DocumentURI      = "DOCUMENT_URI"
	DocumentRoot     = "DOCUMENT_ROOT"
	ServerSoftware   = "SERVER_SOFTWARE"
	RemoteAddr       = "REMOTE_ADDR"
	RemotePort       = "REMOTE_PORT"
	ServerAddr       = "SERVER_ADDR"
	ServerPort       = "SERVER_PORT"
	ServerName       = "SERVER_NAME"
	ServerProtocol   = "SERVER_PROTOCOL"
	ContentType      = "CONTENT_TYPE"
	ContentLength    = "CONTENT_LENGTH"
	HTTPS            = "HTTPS"
	RedirectStatus   = "REDIRECT_STATUS"
	PathInfo         = "PATH_INFO"
)

// Builder fills a *fcgi.Params with chained setters.
type Builder struct {
	params *fcgi.Params
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{params: fcgi.NewParams()}
}

// Default returns a Builder with GATEWAY_INTERFACE, SERVER_SOFTWARE and
// SERVER_PROTOCOL already set.
func Default() *Builder {
	return NewBuilder().
		GatewayInterface("CGI/1.1").
		ServerSoftware("fcgiclient").
		ServerProtocol("HTTP/1.1")
}

func (b *Builder) Set(name, value string) *Builder {
	b.params.Set(name, value)
	return b
}

// Header adds an HTTP request header as HTTP_*. Headers whose names hold
// an underscore or are not tokens are dropped.
func (b *Builder) Header(name, value string) *Builder {
	key, ok := utils.CGIHeaderName(name)
	if !ok {
		log.Warnf("dropping header %q", name)
		return b
	}
	// CONTENT_TYPE and CONTENT_LENGTH carry these two
	if key == "HTTP_CONTENT_TYPE" || key == "HTTP_CONTENT_LENGTH" {
		return b
	}
	b.params.Set(key, value)
	return b
}

func (b *Builder) GatewayInterface(v string) *Builder { return b.Set(GatewayInterface, v) }
func (b *Builder) RequestMethod(v string) *Builder    { return b.Set(RequestMethod, v) }
func (b *Builder) ScriptFilename(v string) *Builder   { return b.Set(ScriptFilename, v) }
func (b *Builder) ScriptName(v string) *Builder       { return b.Set(ScriptName, v) }
func (b *Builder) QueryString(v string) *Builder      { return b.Set(QueryString, v) }
func (b *Builder) RequestURI(v string) *Builder       { return b.Set(RequestURI, v) }
func (b *Builder) DocumentURI(v string) *Builder      { return b.Set(DocumentURI, v) }
func (b *Builder) DocumentRoot(v string) *Builder     { return b.Set(DocumentRoot, v) }
func (b *Builder) ServerSoftware(v string) *Builder   { return b.Set(ServerSoftware, v) }
func (b *Builder) RemoteAddr(v string) *Builder       { return b.Set(RemoteAddr, v) }
func (b *Builder) RemotePort(v int) *Builder          { return b.Set(RemotePort, strconv.Itoa(v)) }
func (b *Builder) ServerAddr(v string) *Builder       { return b.Set(ServerAddr, v) }
func (b *Builder) ServerPort(v int) *Builder          { return b.Set(ServerPort, strconv.Itoa(v)) }
func (b *Builder) ServerName(v string) *Builder       { return b.Set(ServerName, v) }
func (b *Builder) ServerProtocol(v string) *Builder   { return b.Set(ServerProtocol, v) }
func (b *Builder) ContentType(v string) *Builder      { return b.Set(ContentType, v) }
func (b *Builder) ContentLength(n int64) *Builder {
	return b.Set(ContentLength, strconv.FormatInt(n, 10))
}
func (b *Builder) PathInfo(v string) *Builder { return b.Set(PathInfo, v) }

// HTTPS sets HTTPS=on, or removes it.
func (b *Builder) HTTPS(on bool) *Builder {
	if on {
		return b.Set(HTTPS, "on")
	}
	b.params.Del(HTTPS)
	return b
}

// RedirectStatus is what php-cgi with force-cgi-redirect wants to see.
func (b *Builder) RedirectStatus(code int) *Builder {
	return b.Set(RedirectStatus, strconv.Itoa(code))
}

// Params returns the underlying mapping. Later setters keep writing into it.
func (b *Builder) Params() *fcgi.Params {
	return b.params
}
