package procedure

import (
	"crypto/sha256"
	"encoding/hex"
)

// shimPrefix and shimSuffix form the calling convention the remote runtime
// requires: a single-argument lambda receiving one positional object.
const (
	shimPrefix = "(args) => {\n"
	shimSuffix = "\n}"
)

// DomainBody is the digest domain for deployed procedure bodies.
const DomainBody = "procsync/body/v1"

// Record is the remote store's representation of a deployed script.
type Record struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// Wrap wraps compiled artifact text in the calling-convention shim.
//
//	Wrap("T") == "(args) => {\nT\n}"
func Wrap(artifact string) string {
	return shimPrefix + artifact + shimSuffix
}

// NewRecord builds the record deployed for a compiled script.
func NewRecord(id, artifact string) Record {
	return Record{ID: id, Body: Wrap(artifact)}
}

// Digest returns the content digest of the record body.
// Format: hex(SHA256(domain + 0x00 + body)).
func (r Record) Digest() string {
	h := sha256.New()
	h.Write([]byte(DomainBody))
	h.Write([]byte{0x00})
	h.Write([]byte(r.Body))
	return hex.EncodeToString(h.Sum(nil))
}
