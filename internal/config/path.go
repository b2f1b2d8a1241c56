package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ to the home directory, then substitutes
// $VAR references. Camera, lock, database and key file paths pass through it
// before use. If the home directory is unknown the ~ is left in place.
func ExpandPath(p string) string {
	rest, tilde := strings.CutPrefix(p, "~")
	if tilde && (rest == "" || rest[0] == '/') {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, rest)
		}
	}
	return os.ExpandEnv(p)
}
