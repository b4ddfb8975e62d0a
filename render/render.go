package render

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/registry"
)

type kinded interface {
	renderKind() abi.Kind
}

// KindOf returns the native kind of a value embedding one of the families.
func KindOf(v any) abi.Kind {
	if k, ok := v.(kinded); ok {
		return k.renderKind()
	}
	return abi.KindUnknown
}

// Create gives p a twin of the kind its family implies.
func Create(ctx context.Context, b *bridge.Bridge, p bridge.Proxy, typeID uuid.UUID) error {
	kind := KindOf(p)
	if kind == abi.KindUnknown {
		return errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			TypeID(typeID).
			Detail("%T embeds no render family", p).
			Build()
	}
	spec := abi.TwinSpec{TypeID: typeID, Kind: kind}
	if io, ok := p.(interface{ IOSpec() abi.IOSpec }); ok {
		spec.IO = io.IOSpec()
	}
	return b.Create(ctx, p, spec)
}

// Type describes a family type for registration. The kind comes from the
// family T embeds; it panics if T embeds none.
func Type[T any](id uuid.UUID, name string, ctor func() *T) registry.Type {
	kind := KindOf(ctor())
	if kind == abi.KindUnknown {
		panic("render: " + reflect.TypeOf((*T)(nil)).String() + " embeds no render family")
	}
	return registry.Of(id, kind, name, ctor)
}
