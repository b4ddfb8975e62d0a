package render

import (
	"context"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
	"github.com/wippyai/objbridge/dispatch"
)

// MeshProvider is the base of custom render mesh providers. Without
// overrides it builds nothing.
type MeshProvider struct {
	bridge.Base
}

func (*MeshProvider) renderKind() abi.Kind { return abi.KindMeshProvider }

// WillBuild serves the will-build slot.
func (*MeshProvider) WillBuild(context.Context, dispatch.MeshRequest) (bool, error) {
	return false, nil
}

// BoundingBox serves the bounding box slot.
func (*MeshProvider) BoundingBox(context.Context, dispatch.MeshRequest, *abi.BoundingBox) (bool, error) {
	return false, nil
}

// Build serves the build slot.
func (*MeshProvider) Build(context.Context, dispatch.MeshRequest, abi.Handle) (bool, error) {
	return false, nil
}
