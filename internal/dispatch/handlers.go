package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/terminal"
)

func (d *Dispatcher) buildHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		CmdReady:                  d.handleReady,
		CmdStartOutput:            withTerminal(d.handleStartOutput),
		CmdInput:                  withTerminal(d.handleInput),
		CmdResize:                 withTerminal(d.handleResize),
		CmdFocusTerminal:          withTerminal(d.handleFocus),
		CmdCreateTerminal:         d.handleCreate,
		CmdDeleteTerminal:         withTerminal(d.handleDelete),
		CmdDeleteTerminalResponse: d.handleDeleteResponse,
		CmdScrollbackRestored:     withTerminal(d.handleScrollbackRestored),
		CmdScrollbackData:         withTerminal(d.handleScrollbackData),
		CmdSaveSession:            d.handleSave,
		CmdPing:                   d.handlePing,
	}
}

func withTerminal(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, msg Message) error {
		if msg.TerminalID == "" {
			return fmt.Errorf("%s: %w", msg.Command, ErrMissingTerminalID)
		}
		return h(ctx, msg)
	}
}

// handleReady restores the saved session the first time the surface
// reports ready. Later ready messages only re-flush the queue.
func (d *Dispatcher) handleReady(_ context.Context, _ Message) error {
	d.readyOnce.Do(func() {
		go d.restoreSession()
	})
	d.kick()
	return nil
}

func (d *Dispatcher) restoreSession() {
	d.mu.Lock()
	sess := d.sess
	d.mu.Unlock()
	if sess == nil {
		d.Send(Message{Command: CmdSessionRestored}, PriorityHigh)
		return
	}

	res, err := sess.Restore(d.ctx)
	if err != nil {
		d.logger.Warn("session restore failed", zap.Error(err))
	}
	d.Send(Message{
		Command:       CmdSessionRestored,
		TerminalID:    res.ActiveTerminalID,
		RestoredCount: res.RestoredCount,
		SkippedCount:  res.SkippedCount,
	}, PriorityHigh)
}

func (d *Dispatcher) handleStartOutput(_ context.Context, msg Message) error {
	d.acknowledge(msg.TerminalID)
	return nil
}

func (d *Dispatcher) handleInput(ctx context.Context, msg Message) error {
	if msg.Data == "" {
		return nil
	}
	return d.coordinator().WriteInput(ctx, msg.TerminalID, msg.Data)
}

func (d *Dispatcher) handleResize(_ context.Context, msg Message) error {
	return d.coordinator().ResizeTerminal(msg.TerminalID, msg.Cols, msg.Rows)
}

func (d *Dispatcher) handleFocus(_ context.Context, msg Message) error {
	return d.coordinator().FocusTerminal(msg.TerminalID)
}

func (d *Dispatcher) handleCreate(ctx context.Context, msg Message) error {
	_, err := d.coordinator().CreateTerminal(ctx, terminal.CreateOptions{
		Name:  msg.Name,
		Cwd:   msg.Cwd,
		Shell: msg.Shell,
		Cols:  msg.Cols,
		Rows:  msg.Rows,
		Focus: true,
	})
	if err != nil {
		d.Warn(fmt.Sprintf("Failed to create terminal: %v", err))
		return err
	}
	return nil
}

// handleDelete serves a surface-initiated deletion and always answers with
// deleteTerminalResponse.
func (d *Dispatcher) handleDelete(ctx context.Context, msg Message) error {
	err := d.coordinator().DeleteTerminal(ctx, msg.TerminalID)
	resp := Message{
		Command:    CmdDeleteTerminalResponse,
		TerminalID: msg.TerminalID,
		RequestID:  msg.RequestID,
		Success:    boolPtr(err == nil),
	}
	if err != nil {
		resp.Reason = err.Error()
	}
	d.Send(resp, PriorityHigh)
	if err != nil {
		d.Warn(fmt.Sprintf("Failed to delete terminal: %v", err))
		return err
	}
	return nil
}

func (d *Dispatcher) handleDeleteResponse(_ context.Context, msg Message) error {
	d.mu.Lock()
	key := msg.RequestID
	if key == "" {
		for k, pd := range d.deletes {
			if pd.terminalID == msg.TerminalID {
				key = k
				break
			}
		}
	}
	pd, ok := d.deletes[key]
	if ok {
		delete(d.deletes, key)
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("unmatched deletion response",
			zap.String("request_id", msg.RequestID),
			zap.String(logging.TerminalIDKey, msg.TerminalID),
		)
		return nil
	}
	pd.resolve(msg)
	return nil
}

func (d *Dispatcher) handleScrollbackRestored(_ context.Context, msg Message) error {
	if sess := d.session(); sess != nil {
		sess.ScrollbackRestored(msg.TerminalID, msg.RestoredLines)
	}
	return nil
}

func (d *Dispatcher) handleScrollbackData(_ context.Context, msg Message) error {
	if sess := d.session(); sess != nil {
		sess.CacheScrollback(msg.TerminalID, msg.Content)
	}
	return nil
}

func (d *Dispatcher) handleSave(ctx context.Context, _ Message) error {
	sess := d.session()
	if sess == nil {
		return nil
	}
	n, err := sess.Save(ctx)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	d.logger.Debug("session saved on request", zap.Int("terminals", n))
	return nil
}

func (d *Dispatcher) handlePing(_ context.Context, msg Message) error {
	return d.Send(Message{Command: CmdPong, RequestID: msg.RequestID}, PriorityHigh)
}

func (d *Dispatcher) coordinator() Coordinator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.coord
}

func (d *Dispatcher) session() SessionCoordinator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}
