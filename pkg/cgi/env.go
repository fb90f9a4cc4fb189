package cgi

import (
	"sort"
	"strings"

	"github.com/tchap/go-patricia/v2/patricia"
)

// Env indexes "NAME=value" environment entries by name so that whole
// families of variables can be passed through by prefix.
type Env struct {
	trie *patricia.Trie
}

// NewEnv indexes environ, usually os.Environ(). Malformed entries are skipped
// and a later entry wins over an earlier one with the same name.
func NewEnv(environ []string) *Env {
	e := &Env{trie: patricia.NewTrie()}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		e.trie.Set(patricia.Prefix(name), value)
	}
	return e
}

// Get returns the value of name.
func (e *Env) Get(name string) (string, bool) {
	item := e.trie.Get(patricia.Prefix(name))
	if item == nil {
		return "", false
	}
	return item.(string), true
}

// VisitPrefix calls fn for every variable whose name starts with prefix, in
// name order. An empty prefix visits everything.
func (e *Env) VisitPrefix(prefix string, fn func(name, value string)) {
	var names []string
	collect := func(p patricia.Prefix, item patricia.Item) error {
		names = append(names, string(p))
		return nil
	}
	if prefix == "" {
		e.trie.Visit(collect)
	} else {
		e.trie.VisitSubtree(patricia.Prefix(prefix), collect)
	}
	sort.Strings(names)
	for _, name := range names {
		value, _ := e.Get(name)
		fn(name, value)
	}
}

// Pass copies every variable matching one of prefixes into b and returns
// how many were copied.
func (e *Env) Pass(b *Builder, prefixes ...string) int {
	n := 0
	for _, prefix := range prefixes {
		e.VisitPrefix(prefix, func(name, value string) {
			b.Set(name, value)
			n++
		})
	}
	return n
}
