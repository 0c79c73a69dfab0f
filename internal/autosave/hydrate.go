package autosave

import (
	"context"

	"github.com/arloliu/draftsync/types"
)

func (c *Coordinator) startHydration() {
	c.hydrate = hydrateLoading
	c.cfg.Logger.Debug("hydrating draft", "resource", c.cfg.ResourceID)

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.OperationTimeout)
		defer cancel()

		data, err := c.cfg.Adapter.Load(ctx, c.cfg.StorageKey)

		select {
		case c.loadResults <- loadResult{data: data, err: err}:
		case <-c.doneCh:
		}
	}()
}

func (c *Coordinator) onLoadResult(r loadResult) {
	c.cfg.Metrics.RecordHydration(c.cfg.ResourceID, r.data != nil, r.err)

	if r.err != nil {
		c.hydrate = hydrateNone
		se := &types.StorageError{
			Code:      types.CodeHydration,
			Message:   "failed to load persisted draft",
			Retryable: true,
			Err:       r.err,
		}
		c.cfg.Logger.Warn("hydration failed", "resource", c.cfg.ResourceID, "error", r.err)
		c.fireHook("OnError", func(ctx context.Context) error {
			return c.hooks.OnError(ctx, c.cfg.ResourceID, se)
		})

		if !c.hydrateRetryUsed && c.leader && !c.stopping {
			c.hydrateRetryUsed = true
			c.hydrateRetry.Arm(c.cfg.RetryDelay)
		}

		return
	}

	c.hydrate = hydrateDone
	if r.data != nil {
		loaded := r.data.Clone()
		c.hydrated = &loaded
		if !c.everSaved && c.version == 0 {
			c.version = loaded.Version
		}
	}

	c.cfg.Logger.Debug("draft hydrated", "resource", c.cfg.ResourceID, "found", r.data != nil, "version", c.version)

	hydrated := c.hydrated
	c.fireHook("OnHydrated", func(ctx context.Context) error {
		return c.hooks.OnHydrated(ctx, c.cfg.ResourceID, hydrated)
	})
}
