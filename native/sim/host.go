package sim

import (
	"context"

	"github.com/google/uuid"

	"github.com/wippyai/objbridge/abi"
)

// Host drives the installed callbacks the way the native application does.
// Every method returns the slot's sentinel when the bridge is offline.
type Host struct {
	lib *Library
}

// Host returns the driver for l.
func (l *Library) Host() *Host {
	return &Host{lib: l}
}

func (h *Host) serial(ctx context.Context, obj abi.Handle) (int32, *abi.Callbacks) {
	cb := h.lib.cb.Load()
	if cb == nil {
		return 0, nil
	}
	return h.lib.SerialOf(ctx, obj), cb
}

// NewContent asks Go to create content of the given type and returns the
// twin handle Go hands back.
func (h *Host) NewContent(ctx context.Context, typeID uuid.UUID) abi.Handle {
	cb := h.lib.cb.Load()
	if cb == nil || cb.NewContent == nil {
		return abi.Null
	}
	return cb.NewContent(ctx, typeID)
}

// BitFlags lets the Go counterpart of obj adjust capability flags.
func (h *Host) BitFlags(ctx context.Context, obj abi.Handle, flags uint64) uint64 {
	serial, cb := h.serial(ctx, obj)
	if serial <= 0 || cb.BitFlags == nil {
		return flags
	}
	return cb.BitFlags(ctx, serial, flags)
}

// AcceptsChild asks whether parent takes a child of typeID in childSlot.
func (h *Host) AcceptsChild(ctx context.Context, parent abi.Handle, typeID uuid.UUID, childSlot string) bool {
	serial, cb := h.serial(ctx, parent)
	if serial <= 0 || cb.AcceptableChild == nil {
		return false
	}
	return cb.AcceptableChild(ctx, serial, typeID, childSlot)
}

// IsLegacyMaterial asks a material whether it predates the current pipeline.
func (h *Host) IsLegacyMaterial(ctx context.Context, obj abi.Handle) bool {
	serial, cb := h.serial(ctx, obj)
	if serial <= 0 || cb.IsLegacyMaterial == nil {
		return false
	}
	return cb.IsLegacyMaterial(ctx, serial)
}

// SimulateTexture asks a texture for its display approximation.
func (h *Host) SimulateTexture(ctx context.Context, obj abi.Handle) (abi.SimulatedTexture, bool) {
	var out abi.SimulatedTexture
	serial, cb := h.serial(ctx, obj)
	if serial <= 0 || cb.SimulateTexture == nil {
		return out, false
	}
	ok := cb.SimulateTexture(ctx, serial, &out, false)
	return out, ok
}

// SimulateEnvironment asks an environment for its display approximation.
func (h *Host) SimulateEnvironment(ctx context.Context, obj abi.Handle) (abi.SimulatedEnvironment, bool) {
	var out abi.SimulatedEnvironment
	serial, cb := h.serial(ctx, obj)
	if serial <= 0 || cb.SimulateEnvironment == nil {
		return out, false
	}
	ok := cb.SimulateEnvironment(ctx, serial, &out, false)
	return out, ok
}

// EvaluateTexture asks texture for an evaluator, samples it at every point
// and deletes the evaluator again.
func (h *Host) EvaluateTexture(ctx context.Context, texture abi.Handle, points []abi.Vec3) ([]abi.Color4f, bool) {
	serial, cb := h.serial(ctx, texture)
	if serial <= 0 || cb.NewTextureEvaluator == nil {
		return nil, false
	}
	ev := cb.NewTextureEvaluator(ctx, serial)
	if !ev.Valid() {
		return nil, false
	}
	desc, ok := h.lib.Describe(ctx, ev)
	if !ok {
		return nil, false
	}
	defer func() { _ = h.lib.DeleteTwin(ctx, desc.ID) }()

	colors := make([]abi.Color4f, len(points))
	for i, p := range points {
		c, ok := h.lib.GetColor(ctx, h.lib.Find(ctx, desc.ID, abi.Const), p, abi.Vec3{}, abi.Vec3{})
		if !ok {
			return nil, false
		}
		colors[i] = c
	}
	return colors, true
}

// MeshResult is the outcome of BuildMeshes.
type MeshResult struct {
	Box   abi.BoundingBox
	Built bool
}

// BuildMeshes runs the custom mesh protocol against provider for object:
// will-build, bounding box, then build into a native mesh list.
func (h *Host) BuildMeshes(ctx context.Context, provider, viewport, object abi.Handle, requester uuid.UUID, typ abi.MeshType) (MeshResult, bool) {
	var res MeshResult
	serial, cb := h.serial(ctx, provider)
	if serial <= 0 || cb.MeshWillBuild == nil || cb.MeshBuild == nil {
		return res, false
	}
	if !cb.MeshWillBuild(ctx, serial, viewport, object, requester, typ) {
		return res, false
	}
	if cb.MeshBoundingBox != nil && !cb.MeshBoundingBox(ctx, serial, viewport, object, requester, typ, &res.Box) {
		res.Box = abi.BoundingBox{}
	}

	list := h.lib.Adopt(abi.KindUnknown, uuid.Nil, "mesh list")
	defer func() { _ = h.lib.DeleteTwin(ctx, list) }()
	res.Built = cb.MeshBuild(ctx, serial, viewport, h.lib.Find(ctx, list, abi.Mutable), requester, typ)
	return res, true
}

// RenderReport records the pipeline calls a render made.
type RenderReport struct {
	Answers     map[abi.PipelineCall]bool
	ModalPasses int
	Started     bool
}

// MaxModalPasses bounds the modal loop of Render.
const MaxModalPasses = 16

// Render runs a pipeline through a modal render: start, table queries,
// modal loop until the pipeline stops continuing, stop.
func (h *Host) Render(ctx context.Context, pipeline abi.Handle) RenderReport {
	rep := RenderReport{Answers: make(map[abi.PipelineCall]bool)}
	serial, cb := h.serial(ctx, pipeline)
	if serial <= 0 || cb.PipelineGeneral == nil {
		return rep
	}
	call := func(which abi.PipelineCall) bool {
		ok := cb.PipelineGeneral(ctx, serial, which)
		rep.Answers[which] = ok
		return ok
	}

	if !call(abi.PipelineStartRendering) {
		return rep
	}
	rep.Started = true
	call(abi.PipelineNeedGeometryTable)
	call(abi.PipelineNeedLightTable)
	call(abi.PipelineSceneWithNoMeshes)
	if call(abi.PipelineEnterModalLoop) {
		for rep.ModalPasses < MaxModalPasses && call(abi.PipelineContinueModal) {
			rep.ModalPasses++
		}
		call(abi.PipelineExitModalLoop)
	}
	call(abi.PipelineStopRendering)
	return rep
}
