// Package registry maps type identifiers to Go constructors so the native
// side can ask for "a new object of kind X" without knowing anything about Go
// types.
//
// Each identifier is owned by exactly one module. A second module that claims
// an identifier already held by another is rejected; the first owner stays
// authoritative. Registration is all-or-nothing per call.
package registry
