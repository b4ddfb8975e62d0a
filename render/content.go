package render

import (
	"context"

	"github.com/google/uuid"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
	"github.com/wippyai/objbridge/errors"
)

// Content holds what textures, materials and environments share.
type Content struct {
	bridge.Base

	// ExtraFlags are or'ed into the flags native code asks about.
	ExtraFlags uint64
}

// Name returns the content's instance name.
func (c *Content) Name(ctx context.Context) (string, error) {
	return c.GetString(ctx, abi.StringName)
}

// SetName renames the content.
func (c *Content) SetName(ctx context.Context, name string) error {
	return c.SetString(ctx, abi.StringName, name)
}

// Notes returns the content's notes.
func (c *Content) Notes(ctx context.Context) (string, error) {
	return c.GetString(ctx, abi.StringNotes)
}

// SetNotes replaces the content's notes.
func (c *Content) SetNotes(ctx context.Context, notes string) error {
	return c.SetString(ctx, abi.StringNotes, notes)
}

// BitFlags serves the bit flags slot.
func (c *Content) BitFlags(_ context.Context, flags uint64) uint64 {
	return flags | c.ExtraFlags
}

// ContentString serves the content string slot. The type name comes from the
// registry; everything else is held natively.
func (c *Content) ContentString(_ context.Context, which abi.StringID, out *abi.StringBuffer) (bool, error) {
	if which != abi.StringTypeName {
		return false, nil
	}
	b := c.Bridge()
	if b == nil {
		return false, nil
	}
	entry, ok := b.Registry().Lookup(c.TypeID())
	if !ok || entry.Name == "" {
		return false, nil
	}
	out.Set(entry.Name)
	return true, nil
}

// AcceptableChild serves the child slot. Content takes no children unless a
// type says otherwise.
func (c *Content) AcceptableChild(context.Context, uuid.UUID, string) bool {
	return false
}

// Texture is the base of custom textures.
type Texture struct {
	Content
}

func (*Texture) renderKind() abi.Kind { return abi.KindTexture }

// SimulateTexture serves the simulate texture slot. Without an override the
// texture has no display approximation.
func (*Texture) SimulateTexture(context.Context, *abi.SimulatedTexture, bool) (bool, error) {
	return false, nil
}

// NewTextureEvaluator serves the evaluator slot. Without an override the
// texture cannot be sampled.
func (*Texture) NewTextureEvaluator(context.Context) (abi.Handle, error) {
	return abi.Null, nil
}

// Evaluator gives ev a twin and returns the handle native code samples. The
// native side owns the evaluator from then on and deletes it when done.
func (t *Texture) Evaluator(ctx context.Context, ev EvaluatorProxy) (abi.Handle, error) {
	b := t.Bridge()
	if b == nil {
		return abi.Null, errors.NotInitialized(errors.PhaseConstruct, "texture")
	}
	if err := b.Create(ctx, ev, abi.TwinSpec{
		TypeID: t.TypeID(),
		Kind:   abi.KindTextureEvaluator,
	}); err != nil {
		return abi.Null, err
	}
	h, err := ev.Handle(ctx)
	if err != nil {
		_ = ev.Close(ctx)
		return abi.Null, err
	}
	return h, nil
}

// Material is the base of custom materials.
type Material struct {
	Content
}

func (*Material) renderKind() abi.Kind { return abi.KindMaterial }

// SimulateMaterial serves the simulate material slot.
func (*Material) SimulateMaterial(context.Context, *abi.SimulatedMaterial, bool) (bool, error) {
	return false, nil
}

// IsLegacyMaterial serves the legacy material slot.
func (*Material) IsLegacyMaterial(context.Context) bool {
	return false
}

// Simulated asks the native side for the material's approximation. For a
// twin this comes back through the simulate material slot.
func (m *Material) Simulated(ctx context.Context) (abi.SimulatedMaterial, error) {
	return simulated(ctx, &m.Base)
}

func simulated(ctx context.Context, base *bridge.Base) (abi.SimulatedMaterial, error) {
	h, err := base.Handle(ctx)
	if err != nil {
		return abi.SimulatedMaterial{}, err
	}
	sm, ok := base.Bridge().Library().SimulateMaterial(ctx, h)
	if !ok {
		return abi.SimulatedMaterial{}, errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Serial(base.Serial()).
			Detail("material has no simulation").
			Build()
	}
	return sm, nil
}

// Environment is the base of custom environments.
type Environment struct {
	Content
}

func (*Environment) renderKind() abi.Kind { return abi.KindEnvironment }

// SimulateEnvironment serves the simulate environment slot.
func (*Environment) SimulateEnvironment(context.Context, *abi.SimulatedEnvironment, bool) (bool, error) {
	return false, nil
}

// NativeTexture wraps a texture that exists only on the native side.
type NativeTexture struct {
	bridge.Base
}

// NativeMaterial wraps a material that exists only on the native side.
type NativeMaterial struct {
	bridge.Base
}

// Simulated returns the native material's approximation.
func (m *NativeMaterial) Simulated(ctx context.Context) (abi.SimulatedMaterial, error) {
	return simulated(ctx, &m.Base)
}

// NativeEnvironment wraps an environment that exists only on the native side.
type NativeEnvironment struct {
	bridge.Base
}

// NativeEvaluator wraps an evaluator created by native code.
type NativeEvaluator struct {
	bridge.Base
}

// Sample evaluates the native evaluator at uvw.
func (e *NativeEvaluator) Sample(ctx context.Context, uvw abi.Vec3) (abi.Color4f, error) {
	return sample(ctx, &e.Base, uvw)
}

// Wrappers returns the anonymous wrapper table for native-owned content.
func Wrappers() map[abi.Kind]bridge.WrapperFunc {
	return map[abi.Kind]bridge.WrapperFunc{
		abi.KindTexture:          func(abi.Description) bridge.Proxy { return &NativeTexture{} },
		abi.KindMaterial:         func(abi.Description) bridge.Proxy { return &NativeMaterial{} },
		abi.KindEnvironment:      func(abi.Description) bridge.Proxy { return &NativeEnvironment{} },
		abi.KindTextureEvaluator: func(abi.Description) bridge.Proxy { return &NativeEvaluator{} },
	}
}
