//go:build !((linux || darwin || freebsd) && (amd64 || arm64))

package cabi

import (
	"context"

	"github.com/wippyai/objbridge/errors"
)

// Open is not available on this platform.
func Open(_ context.Context, _ Config) (*Library, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native C library on this platform")
}

func newCallback(any) uintptr { return 0 }
