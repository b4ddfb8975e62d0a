package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/wippyai/objbridge/abi"
)

// Resolver finds the proxy registered under a serial.
type Resolver interface {
	ResolveTarget(serial int32) (any, bool)
}

// Installer hands the callback table to the native side. A nil table takes
// the bridge offline.
type Installer interface {
	SetCallbacks(ctx context.Context, cb *abi.Callbacks) error
}

// Factory creates a proxy and its native twin for a type id and returns the
// twin's mutable handle.
type Factory func(ctx context.Context, typeID uuid.UUID) (abi.Handle, error)

// NativeDeleter is notified when the native side deletes a twin on its own.
type NativeDeleter interface {
	NativeDeleted(ctx context.Context)
}

type Flagger interface {
	BitFlags(ctx context.Context, flags uint64) uint64
}

type StringSource interface {
	ContentString(ctx context.Context, which abi.StringID, out *abi.StringBuffer) (bool, error)
}

type ChildAcceptor interface {
	AcceptableChild(ctx context.Context, typeID uuid.UUID, childSlot string) bool
}

type MaterialSimulator interface {
	SimulateMaterial(ctx context.Context, out *abi.SimulatedMaterial, forDataOnly bool) (bool, error)
}

type TextureSimulator interface {
	SimulateTexture(ctx context.Context, out *abi.SimulatedTexture, forDataOnly bool) (bool, error)
}

type EnvironmentSimulator interface {
	SimulateEnvironment(ctx context.Context, out *abi.SimulatedEnvironment, forDataOnly bool) (bool, error)
}

type LegacyMaterial interface {
	IsLegacyMaterial(ctx context.Context) bool
}

// EvaluatorFactory is implemented by textures that hand out evaluators.
type EvaluatorFactory interface {
	NewTextureEvaluator(ctx context.Context) (abi.Handle, error)
}

type ColorEvaluator interface {
	GetColor(ctx context.Context, uvw, duvwdx, duvwdy abi.Vec3, out *abi.Color4f) (bool, error)
}

// MeshRequest carries the arguments shared by the mesh provider slots.
type MeshRequest struct {
	Viewport  abi.Handle
	Object    abi.Handle
	Requester uuid.UUID
	Type      abi.MeshType
}

type MeshProvider interface {
	WillBuild(ctx context.Context, req MeshRequest) (bool, error)
	BoundingBox(ctx context.Context, req MeshRequest, out *abi.BoundingBox) (bool, error)
	Build(ctx context.Context, req MeshRequest, meshes abi.Handle) (bool, error)
}

type PipelineHandler interface {
	PipelineCall(ctx context.Context, which abi.PipelineCall) (bool, error)
}

// ContentIO is implemented by content IO plug-ins. Load returns a mutable
// handle to content it created; Save receives const handles.
type ContentIO interface {
	Load(ctx context.Context, path string) (abi.Handle, error)
	Save(ctx context.Context, path string, content, preview abi.Handle) (bool, error)
	IOString(ctx context.Context, local bool, out *abi.StringBuffer) (bool, error)
}
