package render

import (
	"context"
	"sync"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
)

// PipelineHooks are the steps of a render. Nil hooks are skipped.
type PipelineHooks struct {
	Start func(ctx context.Context) error
	// Pass runs one modal pass and reports whether another is wanted.
	Pass func(ctx context.Context, pass int) (bool, error)
	Stop func(ctx context.Context)
}

// PipelineStatus is a snapshot of a pipeline.
type PipelineStatus struct {
	Running bool
	Modal   bool
	Passes  int
	Renders int
}

// Pipeline answers the pipeline slot for one render engine.
type Pipeline struct {
	bridge.Base

	NeedGeometry    bool
	NeedLights      bool
	AllowEmptyScene bool
	// Modal runs the render in a modal loop driven by Hooks.Pass.
	Modal bool
	Hooks PipelineHooks

	mu     sync.Mutex
	status PipelineStatus
}

func (*Pipeline) renderKind() abi.Kind { return abi.KindPipeline }

// PipelineCall serves the pipeline slot.
func (p *Pipeline) PipelineCall(ctx context.Context, which abi.PipelineCall) (bool, error) {
	switch which {
	case abi.PipelineStartRendering:
		return p.start(ctx)

	case abi.PipelineNeedGeometryTable:
		return p.NeedGeometry, nil
	case abi.PipelineNeedLightTable:
		return p.NeedLights, nil
	case abi.PipelineSceneWithNoMeshes:
		return p.AllowEmptyScene, nil

	case abi.PipelineEnterModalLoop:
		if !p.Modal {
			return false, nil
		}
		p.mu.Lock()
		p.status.Modal = p.status.Running
		entered := p.status.Modal
		p.mu.Unlock()
		return entered, nil

	case abi.PipelineContinueModal:
		p.mu.Lock()
		if !p.status.Modal {
			p.mu.Unlock()
			return false, nil
		}
		pass := p.status.Passes
		p.status.Passes++
		p.mu.Unlock()
		if p.Hooks.Pass == nil {
			return false, nil
		}
		return p.Hooks.Pass(ctx, pass)

	case abi.PipelineExitModalLoop:
		p.mu.Lock()
		p.status.Modal = false
		p.mu.Unlock()
		return true, nil

	case abi.PipelineStopRendering:
		p.mu.Lock()
		was := p.status.Running
		p.status.Running = false
		p.status.Modal = false
		if was {
			p.status.Renders++
		}
		p.mu.Unlock()
		if was && p.Hooks.Stop != nil {
			p.Hooks.Stop(ctx)
		}
		return was, nil

	case abi.PipelineIgnoreObject:
		return false, nil
	}
	return false, nil
}

// start marks the pipeline running. A Start hook that fails or panics
// leaves it stopped.
func (p *Pipeline) start(ctx context.Context) (started bool, err error) {
	p.mu.Lock()
	if p.status.Running {
		p.mu.Unlock()
		return false, nil
	}
	p.status.Running = true
	p.status.Passes = 0
	p.mu.Unlock()
	if p.Hooks.Start == nil {
		return true, nil
	}

	defer func() {
		if !started {
			p.mu.Lock()
			p.status.Running = false
			p.mu.Unlock()
		}
	}()
	if err := p.Hooks.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() PipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
