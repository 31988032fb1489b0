// Package syncer runs the compile-then-sync pipeline.
//
// Every container runs four phases, strictly in order:
//
//  1. Compile: all scripts concurrently; the phase ends when every compile
//     has settled.
//  2. Snapshot: the remote listing is fetched once.
//  3. Classify: each compiled script becomes a create or a replace against
//     that one snapshot.
//  4. Deploy: per script, read the artifact, wrap it, then create or
//     replace. All scripts concurrently.
//
// Containers run in parallel with each other. A failure is captured as the
// Outcome of the script (or, for snapshot failures, of every compiled
// script of the container) and never stops sibling work. Only discovery
// errors abort a run.
//
// The snapshot is a point-in-time listing. A procedure created or removed
// by another process between the listing and a write surfaces as a
// per-script conflict or not-found error, never as a retry.
package syncer
