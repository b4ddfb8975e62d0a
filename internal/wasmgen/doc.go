// Package wasmgen encodes small WebAssembly core modules.
//
// It covers the subset of the binary format the built-in guest needs: function
// types, function imports, one linear memory, exported functions and code
// bodies built with Code. Indices are resolved by the caller.
package wasmgen
