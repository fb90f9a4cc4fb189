package utils

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// LoadTOMLFile decodes the TOML file at path into v.
func LoadTOMLFile(path string, v any) (toml.MetaData, error) {
	meta, err := toml.DecodeFile(path, v)
	if err != nil {
		log.Warnf("config %s does not parse: %v", path, err)
		return meta, err
	}
	return meta, nil
}

// UndecodedKeys lists the keys of a decoded file that had no field to go to.
func UndecodedKeys(meta toml.MetaData) []string {
	var unknown []string
	for _, key := range meta.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown
}

// TableKeys returns the names directly under table in file order.
func TableKeys(meta toml.MetaData, table ...string) []string {
	var names []string
	for _, key := range meta.Keys() {
		if len(key) != len(table)+1 {
			continue
		}
		match := true
		for i, part := range table {
			if key[i] != part {
				match = false
				break
			}
		}
		if match {
			names = append(names, key[len(table)])
		}
	}
	return names
}

// ParseTOMLLoose decodes path into a generic map so callers can pick the
// keys that still have the right type out of a file that failed strict decoding.
func ParseTOMLLoose(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]any)
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("no usable keys in %s: %w", path, err)
	}
	return raw, nil
}

// Section returns the table called name.
func Section(data map[string]any, name string) (map[string]any, bool) {
	table, ok := data[name].(map[string]any)
	return table, ok
}

// Int returns an integer key; TOML integers decode as int64.
func Int(table map[string]any, key string) (int, bool) {
	if v, ok := table[key].(int64); ok {
		return int(v), true
	}
	return 0, false
}

func Bool(table map[string]any, key string) (bool, bool) {
	v, ok := table[key].(bool)
	return v, ok
}

func String(table map[string]any, key string) (string, bool) {
	v, ok := table[key].(string)
	return v, ok
}

// StringMap returns a table whose values are all strings. Other values are
// skipped with a warning.
func StringMap(table map[string]any, key string) (map[string]string, bool) {
	sub, ok := table[key].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(sub))
	for k, v := range sub {
		s, ok := v.(string)
		if !ok {
			log.Warnf("ignoring %s.%s: want a string, got %T", key, k, v)
			continue
		}
		out[k] = s
	}
	return out, true
}
