// Package render provides the proxy families a rendering plug-in builds on:
// textures, materials and environments (content), texture evaluators, custom
// mesh providers, render pipelines and content IO plug-ins.
//
// Each family is a struct to embed. It carries a default answer for every
// callback slot of its kind; a plug-in type overrides a slot by defining the
// method itself. Create and Type infer the native kind from the family a
// type embeds.
//
// Wrappers returns the wrapper table for bridge.Config, so native-owned
// content comes back from Bridge.FromHandle as NativeTexture, NativeMaterial
// or NativeEnvironment instead of a bare bridge.Anonymous.
package render
