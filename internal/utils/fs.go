package utils

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// DirStatus is what CheckDir found out about a directory.
type DirStatus struct {
	Exists   bool
	Writable bool
	Err      error
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SaveTOMLFile encodes v as TOML into path. The file is written next to its
// final name first and renamed over it, so readers never see half a file.
func SaveTOMLFile(v any, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".fcgiclient-*.toml")
	if err != nil {
		log.Errorf("create temp file for %s: %v", path, err)
		return err
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// AbsPath returns path made absolute, or path itself if that fails.
func AbsPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// ExecutableDir is the directory of the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// CheckDir creates dir if needed and probes whether files can be written in it.
func CheckDir(dir string) DirStatus {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warnf("cannot create %s: %v", dir, err)
		return DirStatus{Err: err}
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		log.Warnf("%s is not writable: %v", dir, err)
		return DirStatus{Exists: true}
	}
	probe.Close()
	os.Remove(probe.Name())
	return DirStatus{Exists: true, Writable: true}
}
