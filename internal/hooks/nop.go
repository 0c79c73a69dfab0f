// Package hooks provides default hook implementations.
package hooks

import (
	"context"

	"github.com/arloliu/draftsync/types"
)

// NewNop returns hooks whose callbacks do nothing.
//
// This is the default used when no custom hooks are provided, so callers never
// need nil checks before invoking a hook.
func NewNop() types.Hooks {
	return types.Hooks{
		OnStatusChanged:     func(context.Context, string, types.AutoSaveStatus) error { return nil },
		OnLeadershipChanged: func(context.Context, string, types.LeaderStatus, types.LeaderStatus) error { return nil },
		OnHydrated:          func(context.Context, string, *types.EstimateData) error { return nil },
		OnError:             func(context.Context, string, error) error { return nil },
	}
}

// WithDefaults returns a copy of h where every nil callback is replaced by a no-op.
//
// A nil h yields NewNop().
func WithDefaults(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}

	if h.OnStatusChanged != nil {
		out.OnStatusChanged = h.OnStatusChanged
	}
	if h.OnLeadershipChanged != nil {
		out.OnLeadershipChanged = h.OnLeadershipChanged
	}
	if h.OnHydrated != nil {
		out.OnHydrated = h.OnHydrated
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}
