package util

import (
	"path/filepath"
	"strings"
)

// DocumentKey identifies a document for correction lookups: the base file
// name without its extension.
func DocumentKey(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SafeFileName replaces characters that are awkward in file names.
func SafeFileName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "\"", "_")
	out := repl.Replace(strings.TrimSpace(input))
	if len(out) > 120 {
		out = out[:120]
	}
	if out == "" {
		out = "document"
	}
	return out
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
