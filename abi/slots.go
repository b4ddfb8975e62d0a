package abi

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Slot identifies one fixed-signature callback.
type Slot uint8

const (
	SlotNewContent Slot = iota
	SlotDeleteThis
	SlotBitFlags
	SlotContentString
	SlotAcceptableChild
	SlotSimulateMaterial
	SlotSimulateTexture
	SlotSimulateEnvironment
	SlotIsLegacyMaterial
	SlotNewTextureEvaluator
	SlotEvaluatorGetColor
	SlotEvaluatorDeleteThis
	SlotMeshWillBuild
	SlotMeshBoundingBox
	SlotMeshBuild
	SlotMeshProviderDeleteThis
	SlotPipelineGeneral
	SlotIODeleteThis
	SlotIOLoad
	SlotIOSave
	SlotIOString

	// SlotCount is the number of slots; not a slot.
	SlotCount
)

var slotNames = [SlotCount]string{
	SlotNewContent:             "new_content",
	SlotDeleteThis:             "delete_this",
	SlotBitFlags:               "bit_flags",
	SlotContentString:          "content_string",
	SlotAcceptableChild:        "acceptable_child",
	SlotSimulateMaterial:       "simulate_material",
	SlotSimulateTexture:        "simulate_texture",
	SlotSimulateEnvironment:    "simulate_environment",
	SlotIsLegacyMaterial:       "is_legacy_material",
	SlotNewTextureEvaluator:    "new_texture_evaluator",
	SlotEvaluatorGetColor:      "evaluator_get_color",
	SlotEvaluatorDeleteThis:    "evaluator_delete_this",
	SlotMeshWillBuild:          "mesh_will_build",
	SlotMeshBoundingBox:        "mesh_bounding_box",
	SlotMeshBuild:              "mesh_build",
	SlotMeshProviderDeleteThis: "mesh_provider_delete_this",
	SlotPipelineGeneral:        "pipeline_general",
	SlotIODeleteThis:           "io_delete_this",
	SlotIOLoad:                 "io_load",
	SlotIOSave:                 "io_save",
	SlotIOString:               "io_string",
}

// Name is the symbol-style name of the slot, stable across releases.
func (s Slot) Name() string {
	if s < SlotCount {
		return slotNames[s]
	}
	return fmt.Sprintf("slot_%d", uint8(s))
}

func (s Slot) String() string {
	return s.Name()
}

// Slots returns every slot in declaration order.
func Slots() []Slot {
	out := make([]Slot, SlotCount)
	for i := range out {
		out[i] = Slot(i)
	}
	return out
}

// SlotByName looks up a slot by its Name.
func SlotByName(name string) (Slot, bool) {
	for i, n := range slotNames {
		if n == name {
			return Slot(i), true
		}
	}
	return 0, false
}

// Callbacks is the table installed on the native side. Fields are never
// reused with a different signature.
//
// IOLoad returns a mutable handle to the loaded content, Null on failure.
// IOSave gets a Null preview when no preview scene is available.
type Callbacks struct {
	NewContent             func(ctx context.Context, typeID uuid.UUID) Handle
	DeleteThis             func(ctx context.Context, serial int32)
	BitFlags               func(ctx context.Context, serial int32, flags uint64) uint64
	ContentString          func(ctx context.Context, serial int32, which StringID, out *StringBuffer) bool
	AcceptableChild        func(ctx context.Context, serial int32, typeID uuid.UUID, childSlot string) bool
	SimulateMaterial       func(ctx context.Context, serial int32, out *SimulatedMaterial, forDataOnly bool) bool
	SimulateTexture        func(ctx context.Context, serial int32, out *SimulatedTexture, forDataOnly bool) bool
	SimulateEnvironment    func(ctx context.Context, serial int32, out *SimulatedEnvironment, forDataOnly bool) bool
	IsLegacyMaterial       func(ctx context.Context, serial int32) bool
	NewTextureEvaluator    func(ctx context.Context, serial int32) Handle
	EvaluatorGetColor      func(ctx context.Context, serial int32, uvw, duvwdx, duvwdy Vec3, out *Color4f) bool
	EvaluatorDeleteThis    func(ctx context.Context, serial int32)
	MeshWillBuild          func(ctx context.Context, serial int32, viewport, object Handle, requester uuid.UUID, typ MeshType) bool
	MeshBoundingBox        func(ctx context.Context, serial int32, viewport, object Handle, requester uuid.UUID, typ MeshType, out *BoundingBox) bool
	MeshBuild              func(ctx context.Context, serial int32, viewport, meshes Handle, requester uuid.UUID, typ MeshType) bool
	MeshProviderDeleteThis func(ctx context.Context, serial int32)
	PipelineGeneral        func(ctx context.Context, serial int32, which PipelineCall) bool
	IODeleteThis           func(ctx context.Context, serial int32)
	IOLoad                 func(ctx context.Context, serial int32, path string) Handle
	IOSave                 func(ctx context.Context, serial int32, path string, content, preview Handle) bool
	IOString               func(ctx context.Context, serial int32, local bool, out *StringBuffer) bool
}

// Installed reports whether the slot has a non-nil entry point.
func (c *Callbacks) Installed(s Slot) bool {
	if c == nil {
		return false
	}
	switch s {
	case SlotNewContent:
		return c.NewContent != nil
	case SlotDeleteThis:
		return c.DeleteThis != nil
	case SlotBitFlags:
		return c.BitFlags != nil
	case SlotContentString:
		return c.ContentString != nil
	case SlotAcceptableChild:
		return c.AcceptableChild != nil
	case SlotSimulateMaterial:
		return c.SimulateMaterial != nil
	case SlotSimulateTexture:
		return c.SimulateTexture != nil
	case SlotSimulateEnvironment:
		return c.SimulateEnvironment != nil
	case SlotIsLegacyMaterial:
		return c.IsLegacyMaterial != nil
	case SlotNewTextureEvaluator:
		return c.NewTextureEvaluator != nil
	case SlotEvaluatorGetColor:
		return c.EvaluatorGetColor != nil
	case SlotEvaluatorDeleteThis:
		return c.EvaluatorDeleteThis != nil
	case SlotMeshWillBuild:
		return c.MeshWillBuild != nil
	case SlotMeshBoundingBox:
		return c.MeshBoundingBox != nil
	case SlotMeshBuild:
		return c.MeshBuild != nil
	case SlotMeshProviderDeleteThis:
		return c.MeshProviderDeleteThis != nil
	case SlotPipelineGeneral:
		return c.PipelineGeneral != nil
	case SlotIODeleteThis:
		return c.IODeleteThis != nil
	case SlotIOLoad:
		return c.IOLoad != nil
	case SlotIOSave:
		return c.IOSave != nil
	case SlotIOString:
		return c.IOString != nil
	}
	return false
}

// Count returns the number of installed slots.
func (c *Callbacks) Count() int {
	n := 0
	for _, s := range Slots() {
		if c.Installed(s) {
			n++
		}
	}
	return n
}
