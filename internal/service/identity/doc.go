// Package identity resolves caller-supplied opaque identifiers.
//
// Session ids are generated by the client and persisted on first sight;
// resolving a session never mutates an existing row, so concurrent
// enrichment calls that resolve the same session cannot double-count.
// Tracking ids resolve to an existing campaign recipient or to ErrNotFound;
// malformed tokens are reported as ErrNotFound as well so adapters have a
// single soft path.
package identity
