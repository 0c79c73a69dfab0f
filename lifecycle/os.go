package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/types"
)

// OS fires the unload signal when the process receives a termination signal.
type OS struct {
	*Manual

	signals []os.Signal
	logger  types.Logger
}

// NewOS creates a signal listening for sigs, or SIGINT and SIGTERM when none are given.
func NewOS(logger types.Logger, sigs ...os.Signal) *OS {
	if logger == nil {
		logger = logging.NewNop()
	}
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	return &OS{Manual: NewManual(), signals: sigs, logger: logger}
}

// Wait blocks until a termination signal arrives or ctx is done.
//
// On a signal every handler runs before Wait returns; unsaved reports whether any
// handler asked for confirmation. On ctx done no handler runs and ctx.Err() is returned.
func (o *OS) Wait(ctx context.Context) (sig os.Signal, unsaved bool, err error) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, o.signals...)
	defer signal.Stop(ch)

	select {
	case sig = <-ch:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	o.logger.Info("termination signal received, running unload handlers",
		"signal", sig.String(), "handlers", o.Handlers())
	unsaved = o.Trigger()
	if unsaved {
		o.logger.Warn("unsaved drafts remain after unload handlers")
	}

	return sig, unsaved, nil
}
