package autosave

import (
	"context"
	"errors"

	"github.com/arloliu/draftsync/types"
)

// BeforeUnload handles the "about to unload" signal.
//
// When the draft is dirty, the leader first tries to flush within
// EmergencyFlushTimeout. Then, whatever the flush outcome and whether or not this
// context leads, the draft is written to the emergency log. Emergency log errors are
// logged only.
//
// Returns true when unsaved state remains, asking the user to confirm leaving.
func (c *Coordinator) BeforeUnload() bool {
	if !c.View().Dirty {
		return false
	}

	if c.cfg.Leader.IsLeader() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.EmergencyFlushTimeout)
		err := c.Flush(ctx)
		cancel()
		if err != nil && !errors.Is(err, types.ErrNotLeader) {
			c.cfg.Logger.Warn("emergency flush failed", "resource", c.cfg.ResourceID, "error", err)
		}
	}

	v := c.View()
	c.writeEmergencyRecord(v.Data)

	return v.Dirty
}

func (c *Coordinator) writeEmergencyRecord(data types.EstimateData) {
	if c.cfg.EmergencyLog == nil {
		return
	}

	rec := types.EmergencyRecord{
		Type:       types.EmergencyRecordType,
		ResourceID: c.cfg.ResourceID,
		Data:       data.Clone(),
		Timestamp:  c.cfg.Clock.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OperationTimeout)
	defer cancel()

	if err := c.cfg.EmergencyLog.Append(ctx, rec); err != nil {
		c.cfg.Metrics.RecordEmergencySave(c.cfg.ResourceID, false)
		c.cfg.Logger.Error("failed to write emergency record", "resource", c.cfg.ResourceID, "error", err)

		return
	}

	c.cfg.Metrics.RecordEmergencySave(c.cfg.ResourceID, true)
	c.cfg.Logger.Info("emergency record written", "resource", c.cfg.ResourceID, "key", rec.Key())
}
