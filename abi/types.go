package abi

import (
	"fmt"

	"github.com/google/uuid"
)

// Handle is an opaque address meaningful only to the native side.
type Handle uintptr

// Null is the invalid handle.
const Null Handle = 0

// Valid reports whether h is not Null.
func (h Handle) Valid() bool {
	return h != Null
}

// StableID identifies a native object independently of its address.
// Zero is never assigned by a native library.
type StableID uint64

// Access selects the const or mutable flavor of a handle.
type Access uint8

const (
	Const Access = iota
	Mutable
)

func (a Access) String() string {
	if a == Mutable {
		return "mutable"
	}
	return "const"
}

// Kind is the native class family of an object.
type Kind uint32

const (
	KindUnknown Kind = iota
	KindTexture
	KindMaterial
	KindEnvironment
	KindTextureEvaluator
	KindMeshProvider
	KindPipeline
	KindContentIO
)

var kindNames = [...]string{
	KindUnknown:          "unknown",
	KindTexture:          "texture",
	KindMaterial:         "material",
	KindEnvironment:      "environment",
	KindTextureEvaluator: "texture-evaluator",
	KindMeshProvider:     "mesh-provider",
	KindPipeline:         "pipeline",
	KindContentIO:        "content-io",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// IsContent reports whether the kind is a render content family.
func (k Kind) IsContent() bool {
	return k == KindTexture || k == KindMaterial || k == KindEnvironment
}

// TwinSpec describes the native twin requested for a new proxy.
type TwinSpec struct {
	TypeID       uuid.UUID
	Owner        uuid.UUID
	RenderEngine uuid.UUID
	Kind         Kind
	Serial       int32
	ImageBased   bool

	// IO is only read for KindContentIO twins.
	IO IOSpec
}

// IOSpec describes what a content IO plug-in reads and writes.
type IOSpec struct {
	// Extension is the file extension without the dot, matched
	// case-insensitively.
	Extension string

	// ContentKind limits Save to one content kind; KindUnknown takes any.
	ContentKind Kind

	CanLoad bool
	CanSave bool
}

// Description is what the native side reports about an object it owns.
type Description struct {
	TypeID uuid.UUID
	ID     StableID
	Kind   Kind
	Serial int32
}

// StringID selects a string property on a native object.
type StringID int32

const (
	StringName StringID = iota
	StringTypeName
	StringTypeDescription
	StringNotes
	StringCategory
)

// Vec3 is a point or vector passed by value.
type Vec3 struct {
	X, Y, Z float64
}

// Color4f is an RGBA color passed by value.
type Color4f struct {
	R, G, B, A float32
}

// Empty reports whether c is the zero color, which evaluators use as "no value".
func (c Color4f) Empty() bool {
	return c == Color4f{}
}

// BoundingBox is an axis-aligned box. Min > Max on any axis means invalid.
type BoundingBox struct {
	Min, Max Vec3
}

// Valid reports whether the box is not inverted.
func (b BoundingBox) Valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// SimulatedMaterial is the fixed-layout approximation a material hands to
// the native display pipeline.
type SimulatedMaterial struct {
	Diffuse      Color4f
	Specular     Color4f
	Shine        float64
	Transparency float64
	Reflectivity float64
}

// SimulatedTexture is the fixed-layout approximation of a texture.
type SimulatedTexture struct {
	Color    Color4f
	Repeat   Vec3
	Offset   Vec3
	Rotation float64
}

// SimulatedEnvironment is the fixed-layout approximation of an environment.
type SimulatedEnvironment struct {
	Background Color4f
	Projection int32
}

// MeshType selects the purpose of a custom mesh request.
type MeshType int32

const (
	MeshRender MeshType = iota
	MeshPreview
)

// PipelineCall identifies the virtual function invoked through the pipeline slot.
type PipelineCall int32

const (
	PipelineStartRendering PipelineCall = iota
	PipelineStopRendering
	PipelineNeedGeometryTable
	PipelineNeedLightTable
	PipelineSceneWithNoMeshes
	PipelineEnterModalLoop
	PipelineExitModalLoop
	PipelineContinueModal
	PipelineIgnoreObject
)
