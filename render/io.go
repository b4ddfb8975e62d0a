package render

import (
	"context"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
)

// IOHooks read and write one file format. A nil hook means the plug-in
// cannot do that direction.
type IOHooks struct {
	// Load makes content from path. The returned proxy must already have a
	// twin; ownership passes to the caller of the load slot.
	Load func(ctx context.Context, path string) (bridge.Proxy, error)
	// Save writes content to path. Preview is nil when none was sent.
	Save func(ctx context.Context, path string, content, preview bridge.Proxy) (bool, error)
}

// ContentIO is the base of content IO plug-ins, which open and save render
// content in a file format of their own.
type ContentIO struct {
	bridge.Base

	// Extension is matched without the dot and ignoring case.
	Extension string

	// ContentKind restricts Save to one content kind; abi.KindUnknown takes
	// any.
	ContentKind abi.Kind

	Description      string
	LocalDescription string

	Hooks IOHooks
}

func (*ContentIO) renderKind() abi.Kind { return abi.KindContentIO }

// IOSpec is what the native side routes files by.
func (c *ContentIO) IOSpec() abi.IOSpec {
	return abi.IOSpec{
		Extension:   c.Extension,
		ContentKind: c.ContentKind,
		CanLoad:     c.Hooks.Load != nil,
		CanSave:     c.Hooks.Save != nil,
	}
}

// Load serves the load slot with a mutable handle of the loaded content.
func (c *ContentIO) Load(ctx context.Context, path string) (abi.Handle, error) {
	if c.Hooks.Load == nil {
		return abi.Null, nil
	}
	p, err := c.Hooks.Load(ctx, path)
	if err != nil || p == nil {
		return abi.Null, err
	}
	h, err := p.HandleMutable(ctx)
	if err != nil {
		_ = p.Close(ctx)
		return abi.Null, err
	}
	return h, nil
}

// Save serves the save slot. Content and preview arrive as native handles
// and are resolved through the bridge, so twins come back as their proxies.
func (c *ContentIO) Save(ctx context.Context, path string, content, preview abi.Handle) (bool, error) {
	b := c.Bridge()
	if c.Hooks.Save == nil || b == nil {
		return false, nil
	}
	cp, err := b.FromHandle(ctx, content)
	if err != nil {
		return false, err
	}
	if c.ContentKind != abi.KindUnknown && cp.Kind() != c.ContentKind {
		return false, nil
	}
	var pp bridge.Proxy
	if preview.Valid() {
		if pp, err = b.FromHandle(ctx, preview); err != nil {
			return false, err
		}
	}
	return c.Hooks.Save(ctx, path, cp, pp)
}

// IOString serves the description slot. Without a localized description
// the plain one is used for both.
func (c *ContentIO) IOString(_ context.Context, local bool, out *abi.StringBuffer) (bool, error) {
	s := c.Description
	if local && c.LocalDescription != "" {
		s = c.LocalDescription
	}
	if s == "" {
		return false, nil
	}
	out.Set(s)
	return true, nil
}
