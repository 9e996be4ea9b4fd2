package constants

import "strings"

// MaxUploadBytes is the largest document accepted for submission (200 MiB).
const MaxUploadBytes int64 = 200 * 1024 * 1024

// AllowedExtensions holds the document extensions accepted per job kind.
var AllowedExtensions = map[JobKind]map[string]struct{}{
	JobKindProcessPDF: {
		"pdf": {},
	},
	JobKindGenerateSentence: {
		"docx": {},
	},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Allowed reports whether ext is accepted for kind.
func Allowed(kind JobKind, ext string) bool {
	exts, ok := AllowedExtensions[kind]
	if !ok {
		return false
	}
	_, ok = exts[NormalizeExt(ext)]
	return ok
}
