package utils

import "strings"

// CGIHeaderName turns an HTTP header name into its CGI meta-variable name:
// "User-Agent" becomes "HTTP_USER_AGENT". Names containing '_' are refused
// since "X_Foo" and "X-Foo" would collide, and so are names that are not
// HTTP tokens.
func CGIHeaderName(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	var b strings.Builder
	b.Grow(len("HTTP_") + len(header))
	b.WriteString("HTTP_")
	for i := 0; i < len(header); i++ {
		c := header[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - ('a' - 'A'))
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-':
			b.WriteByte('_')
		case c == '_':
			return "", false
		case strings.IndexByte("!#$%&'*+.^`|~", c) >= 0:
			b.WriteByte(c)
		default:
			return "", false
		}
	}
	return b.String(), true
}

// SplitHeader splits "Name: value" into its trimmed parts.
func SplitHeader(line string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

// SplitPair splits "NAME=value". The value may contain '='.
func SplitPair(kv string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(kv, "=")
	if !ok || name == "" {
		return "", "", false
	}
	return name, value, true
}
