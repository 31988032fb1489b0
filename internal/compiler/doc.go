// Package compiler turns one script source into one compiled artifact at
// the layout's deterministic output path.
//
// Two adapters are provided:
//   - Esbuild bundles TypeScript in-process with esbuild's Go API.
//   - Command runs an external bundler (for example webpack) per script.
//
// Every Compile call is independent of every other. Callers are expected to
// isolate failures: a *CompileError affects one script only.
package compiler
