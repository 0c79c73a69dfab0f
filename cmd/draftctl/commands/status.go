package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/arloliu/draftsync"
	"github.com/arloliu/draftsync/internal/kvutil"
	"github.com/arloliu/draftsync/sharedkv"
)

func newStatusCmd() *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current leader record of a resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if resource == "" {
				return errors.New("--resource is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.NATS.Name))
			if err != nil {
				return fmt.Errorf("connect to NATS %s: %w", cfg.NATS.URL, err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("create JetStream context: %w", err)
			}

			kv, err := kvutil.EnsureBucket(cmd.Context(), js, kvutil.CoordinationBucket(cfg.Draftsync.KVBuckets.CoordinationBucket), 0)
			if err != nil {
				return err
			}

			return printLeader(cmd.Context(), cmd.OutOrStdout(), sharedkv.NewNATS(kv), cfg.Draftsync, resource, time.Now())
		},
	}

	cmd.Flags().StringVarP(&resource, "resource", "r", "", "resource (estimate) ID")

	return cmd
}

// leaderView is the printed form of a leader record.
type leaderView struct {
	Resource  string    `json:"resource"`
	Leader    string    `json:"leader,omitempty"`
	ClaimedAt time.Time `json:"claimedAt,omitzero"`
	Heartbeat time.Time `json:"heartbeat,omitzero"`
	Stale     bool      `json:"stale"`
}

func printLeader(ctx context.Context, w io.Writer, kv draftsync.SharedKV, cfg draftsync.Config, resource string, now time.Time) error {
	view := leaderView{Resource: resource, Stale: true}

	raw, err := kv.Get(ctx, cfg.Election.KeyPrefix+"."+resource)
	switch {
	case errors.Is(err, draftsync.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		var rec draftsync.LeaderRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("malformed leader record: %w", err)
		}
		view.Leader = rec.ContextID
		view.ClaimedAt = rec.ClaimedAt
		view.Heartbeat = rec.Heartbeat
		view.Stale = rec.IsStale(now, cfg.Election.LeaseTimeout)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(view)
}
