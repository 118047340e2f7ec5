// Package violid provides deterministic fingerprints for violations. The
// fingerprint is stable across runs for the same file, line number, and
// original text, so duplicate submissions can be deduplicated at intake and
// outcomes can be reassociated by the caller.
package violid

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// StableViolationID returns a deterministic ID built from the file path, the
// 1-based line number, and the original line text. CRLF is normalized to LF
// and the line number is clamped to 1 when non-positive so the hash is never
// built from an invalid location.
func StableViolationID(filePath string, lineNumber int, originalLine string) string {
	if lineNumber < 1 {
		lineNumber = 1
	}
	norm := strings.ReplaceAll(originalLine, "\r\n", "\n")
	return hashString(filePath + ":" + strconv.Itoa(lineNumber) + ":" + norm)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
