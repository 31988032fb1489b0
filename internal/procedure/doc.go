// Package procedure holds the data model shared by the build-and-sync
// pipeline: remote procedure records, the calling-convention shim, the
// existing-procedure snapshot used for create/replace classification, and
// per-script outcomes.
//
// This package imports nothing internal. Every other internal package may
// import it.
package procedure
