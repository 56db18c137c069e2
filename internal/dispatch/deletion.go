package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/id"
)

type pendingDelete struct {
	terminalID string
	done       chan Message
}

func (p *pendingDelete) resolve(msg Message) {
	select {
	case p.done <- msg:
	default:
	}
}

// RequestDeletion asks the surface to dispose of a terminal and removes it
// once the surface agrees. The terminal is held in Closing meanwhile; a
// rejection or timeout rolls it back and shows a warning.
//
// RequestDeletion blocks for up to DeleteTimeout waiting for the surface's
// deleteTerminalResponse, which arrives through HandleMessage. It must not
// be called from the goroutine that reads surface messages: that read loop
// would stall until the timeout and the deletion would always fail.
func (d *Dispatcher) RequestDeletion(ctx context.Context, terminalID string) error {
	coord := d.coordinator()
	if coord == nil {
		return ErrClosed
	}
	prev, err := coord.BeginClose(terminalID)
	if err != nil {
		return err
	}
	logger := logging.ForTerminal(d.logger, terminalID)

	reqID := string(id.NewRequestID())
	pd := &pendingDelete{terminalID: terminalID, done: make(chan Message, 1)}
	timedOut := make(chan struct{})

	d.mu.Lock()
	d.deletes[reqID] = pd
	d.mu.Unlock()
	timer := d.clock.AfterFunc(d.opts.DeleteTimeout, func() { close(timedOut) })
	defer func() {
		timer.Stop()
		d.mu.Lock()
		delete(d.deletes, reqID)
		d.mu.Unlock()
	}()

	fail := func(err error) error {
		coord.RollbackClose(terminalID, prev)
		logger.Warn("terminal deletion failed", zap.String("request_id", reqID), zap.Error(err))
		d.Warn(fmt.Sprintf("Failed to delete terminal: %v", err))
		return err
	}

	if err := d.Send(Message{Command: CmdDeleteTerminal, TerminalID: terminalID, RequestID: reqID}, PriorityHigh); err != nil {
		return fail(err)
	}

	var resp Message
	select {
	case resp = <-pd.done:
	case <-timedOut:
		return fail(ErrDeleteTimeout)
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-d.ctx.Done():
		return fail(ErrClosed)
	}

	if resp.Success == nil || !*resp.Success {
		reason := resp.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return fail(fmt.Errorf("%w: %s", ErrDeleteRejected, reason))
	}
	if err := coord.DeleteTerminal(ctx, terminalID); err != nil {
		return fail(err)
	}
	logger.Debug("terminal deleted on request", zap.String("request_id", reqID))
	return nil
}
