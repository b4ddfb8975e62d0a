//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package cabi

import (
	"context"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/errors"
)

// Open loads the shared object and binds its symbols.
func Open(_ context.Context, cfg Config) (*Library, error) {
	path := cfg.path()
	if path == "" {
		return nil, errors.Load("no native library path; set "+EnvLibrary, nil)
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, errors.Load("dlopen "+path, err)
	}

	l := &Library{
		handle:  handle,
		path:    path,
		dlclose: purego.Dlclose,
		logger:  cfg.Logger,
	}
	if l.logger == nil {
		l.logger = Logger()
	}
	if err := bind(handle, &l.fn); err != nil {
		_ = purego.Dlclose(handle)
		return nil, err
	}

	l.logger.Debug("native library loaded", zap.String("path", path))
	return l, nil
}

func bind(handle uintptr, fn *bindings) error {
	symbols := []struct {
		ptr  any
		name string
	}{
		{&fn.twinNew, "rdk_twin_new"},
		{&fn.twinDelete, "rdk_twin_delete"},
		{&fn.twinFind, "rdk_twin_find"},
		{&fn.twinSerial, "rdk_twin_serial"},
		{&fn.twinDescribe, "rdk_twin_describe"},
		{&fn.getString, "rdk_content_get_string"},
		{&fn.setString, "rdk_content_set_string"},
		{&fn.getColor, "rdk_evaluator_get_color"},
		{&fn.simulate, "rdk_simulate_material"},
		{&fn.setCallback, "rdk_set_callback"},
	}
	for _, s := range symbols {
		sym, err := purego.Dlsym(handle, s.name)
		if err != nil {
			return errors.Load("missing symbol "+s.name, err)
		}
		purego.RegisterFunc(s.ptr, sym)
	}
	return nil
}

func newCallback(fn any) uintptr {
	return purego.NewCallback(fn)
}
