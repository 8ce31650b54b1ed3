// Package naming derives collision-free local file names for exported
// documents.
//
// The policy is deliberately minimal: Sanitize only removes the
// characters that would change the meaning of a path (":" becomes "_",
// "/" and "\" become "-"). Case, whitespace and Unicode are kept as the
// repository stores them.
//
// Uniqueness is resolved against the filesystem at the moment of the
// check. The export runs on a single goroutine, so nothing else creates
// files in the target tree between the check and the write.
package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// sanitizer performs all replacements in one pass.
var sanitizer = strings.NewReplacer(
	":", "_",
	"/", "-",
	`\`, "-",
)

// Sanitize makes an object name usable as a single path segment.
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(name string) string {
	return sanitizer.Replace(name)
}

// BaseName builds the file name without extension: the sanitized object
// name, followed by "-v<version>" when versioned is true.
func BaseName(name, version string, versioned bool) string {
	base := Sanitize(name)
	if versioned {
		base += "-v" + version
	}
	return base
}

// Extension normalizes a format extension to ".ext". An empty format
// yields an empty extension, so the file name gets no trailing dot.
func Extension(format string) string {
	format = strings.TrimSpace(format)
	if format == "" {
		return ""
	}
	if strings.HasPrefix(format, ".") {
		return format
	}
	return "." + format
}

// Candidate returns the path tried for a given counter value. Counter 0
// has no suffix; counter n > 0 inserts "_(n)" before the extension.
//
//	Candidate("/out", "Report", ".pdf", 0) → "/out/Report.pdf"
//	Candidate("/out", "Report", ".pdf", 2) → "/out/Report_(2).pdf"
func Candidate(dir, base, ext string, counter int) string {
	if counter == 0 {
		return filepath.Join(dir, base+ext)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_(%d)%s", base, counter, ext))
}

// UniquePath returns the first candidate path in dir that does not
// exist, trying counter 0, 1, 2, ... without an upper bound.
//
// A stat error other than "not exist" (permission denied, for example)
// is returned instead of looping.
func UniquePath(dir, base, ext string) (string, error) {
	for counter := 0; ; counter++ {
		path := Candidate(dir, base, ext, counter)

		_, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("check %s: %w", path, err)
		}
	}
}
