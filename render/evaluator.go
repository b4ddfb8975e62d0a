package render

import (
	"context"
	"math"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
	"github.com/wippyai/objbridge/errors"
)

// EvaluatorProxy is a texture evaluator proxy.
type EvaluatorProxy interface {
	bridge.Proxy
	GetColor(ctx context.Context, uvw, duvwdx, duvwdy abi.Vec3, out *abi.Color4f) (bool, error)
}

// ColorFunc computes a color at a texture coordinate.
type ColorFunc func(uvw abi.Vec3) abi.Color4f

// Evaluator is the base of custom texture evaluators. With Color set it
// needs no override.
type Evaluator struct {
	bridge.Base
	Color ColorFunc
}

func (*Evaluator) renderKind() abi.Kind { return abi.KindTextureEvaluator }

// GetColor serves the evaluator color slot.
func (e *Evaluator) GetColor(_ context.Context, uvw, _, _ abi.Vec3, out *abi.Color4f) (bool, error) {
	if e.Color == nil {
		return false, nil
	}
	*out = e.Color(uvw)
	return true, nil
}

// Sample asks the native side to evaluate at uvw. For a twin the call comes
// back through the evaluator color slot.
func (e *Evaluator) Sample(ctx context.Context, uvw abi.Vec3) (abi.Color4f, error) {
	return sample(ctx, &e.Base, uvw)
}

func sample(ctx context.Context, base *bridge.Base, uvw abi.Vec3) (abi.Color4f, error) {
	h, err := base.Handle(ctx)
	if err != nil {
		return abi.Color4f{}, err
	}
	c, ok := base.Bridge().Library().GetColor(ctx, h, uvw, abi.Vec3{}, abi.Vec3{})
	if !ok {
		return abi.Color4f{}, errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Serial(base.Serial()).
			Detail("evaluator returned no color").
			Build()
	}
	return c, nil
}

// Checker returns a ColorFunc alternating a and b on a grid of size cells per
// unit.
func Checker(a, b abi.Color4f, size float64) ColorFunc {
	return func(uvw abi.Vec3) abi.Color4f {
		i := int(math.Floor(uvw.X*size)) + int(math.Floor(uvw.Y*size))
		if i&1 == 0 {
			return a
		}
		return b
	}
}
