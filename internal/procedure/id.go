package procedure

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeID returns the NFC form of a script identifier.
// Filesystems such as APFS may hand back decomposed names; the remote
// store compares identifiers byte for byte.
func NormalizeID(id string) string {
	return norm.NFC.String(id)
}

// FoldID returns the case-folded form of id used to detect identifiers
// that differ only by casing.
// A Caser is stateful, so one is built per call.
func FoldID(id string) string {
	return cases.Fold().String(NormalizeID(id))
}
