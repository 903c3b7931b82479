// Package artifact retrieves generated files from the execution host and
// writes them under a local output root, optionally re-encoded.
//
// Provenance stored by the host in PNG tEXt chunks is carried over: back
// into tEXt chunks for PNG targets, as a JSON COM segment for JPEG targets.
package artifact
