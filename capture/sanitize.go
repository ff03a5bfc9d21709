package capture

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var reservedPrefixes = []string{`\\?\`, `\\.\`, `\??\`}

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizePath rewrites p into a path every supported OS accepts as a file
// name. Directory separators are kept; each element is cleaned with
// SanitizeFilename. The result depends only on p.
func SanitizePath(p string) string {
	for trimmed := true; trimmed; {
		trimmed = false
		for _, pre := range reservedPrefixes {
			if strings.HasPrefix(p, pre) {
				p = p[len(pre):]
				trimmed = true
			}
		}
	}
	p = norm.NFC.String(p)

	vol := ""
	if len(p) >= 2 && p[1] == ':' && isLetter(p[0]) {
		vol, p = p[:2], p[2:]
	}
	parts := strings.FieldsFunc(p, isSeparator)
	for i, part := range parts {
		if part == "." || part == ".." {
			continue
		}
		parts[i] = SanitizeFilename(part)
	}
	out := strings.Join(parts, string(os.PathSeparator))
	if p != "" && isSeparator(rune(p[0])) {
		out = string(os.PathSeparator) + out
	}
	if len(parts) == 0 && out == "" {
		out = SanitizeFilename("")
	}
	return filepath.Clean(vol + out)
}

// SanitizeFilename replaces characters that are invalid in a file name on
// any supported OS and avoids reserved device names.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), " .")
	if out == "" {
		return "screenshot"
	}
	stem, ext, _ := strings.Cut(out, ".")
	if reservedNames[strings.ToUpper(stem)] {
		out = stem + "_"
		if ext != "" {
			out += "." + ext
		}
	}
	return out
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
