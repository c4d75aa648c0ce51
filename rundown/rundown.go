package rundown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Signal is closed on the first SIGINT or SIGTERM.
var Signal = make(chan struct{})

var received os.Signal

func init() {
	go func() {
		var stopChan = make(chan os.Signal, 2)
		signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		received = <-stopChan
		close(Signal)
	}()
}

// ErrInterrupted is the cause of contexts cancelled by a signal.
type ErrInterrupted struct {
	Signal os.Signal
}

func (e ErrInterrupted) Error() string {
	return fmt.Sprintf("interrupted by %s", e.Signal)
}

// WithContext returns a context cancelled with ErrInterrupted once a stop signal arrives.
func WithContext(rctx context.Context) (ctx context.Context, cancel context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(rctx)
	go func() {
		select {
		case <-Signal:
			cancelCause(ErrInterrupted{received})
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancelCause(context.Canceled) }
}
