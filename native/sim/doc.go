// Package sim is an in-process native object graph for tests, demos and
// development without a real native library.
//
// It behaves like a const-correct native library: const and mutable handles
// have different addresses, every mutation retires the previous mutable
// address, and Relocate moves an object so every cached handle goes stale.
// Code that follows the re-resolution rule never notices; code that caches a
// handle breaks in the same way it would against the real thing.
//
// Host drives the installed callbacks the way a renderer does: building
// meshes, evaluating textures and running a render pipeline.
package sim
