package dispatch

import (
	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

// Inbound commands sent by the rendering surface.
const (
	CmdReady                  = "ready"
	CmdStartOutput            = "startOutput"
	CmdInput                  = "input"
	CmdResize                 = "resize"
	CmdFocusTerminal          = "focusTerminal"
	CmdCreateTerminal         = "createTerminal"
	CmdDeleteTerminal         = "deleteTerminal"
	CmdDeleteTerminalResponse = "deleteTerminalResponse"
	CmdScrollbackRestored     = "scrollbackRestored"
	CmdScrollbackData         = "scrollbackData"
	CmdSaveSession            = "saveSession"
	CmdPing                   = "ping"
)

// Outbound commands sent to the rendering surface.
const (
	CmdTerminalCreated        = "terminalCreated"
	CmdInitializationComplete = "initializationComplete"
	CmdOutput                 = "output"
	CmdRestoreScrollback      = "restoreScrollback"
	CmdRequestScrollback      = "requestScrollback"
	CmdSetActiveTerminal      = "setActiveTerminal"
	CmdTerminalExited         = "terminalExited"
	CmdTerminalRemoved        = "terminalRemoved"
	CmdShowWarning            = "showWarning"
	CmdSessionRestored        = "sessionRestored"
	CmdPong                   = "pong"
)

// Message is one protocol record. Fields are populated per command.
type Message struct {
	Command           string                  `json:"command"`
	TerminalID        string                  `json:"terminalId,omitempty"`
	TerminalNumber    int                     `json:"terminalNumber,omitempty"`
	Config            *terminal.SurfaceConfig `json:"config,omitempty"`
	Data              string                  `json:"data,omitempty"`
	Cols              int                     `json:"cols,omitempty"`
	Rows              int                     `json:"rows,omitempty"`
	Name              string                  `json:"name,omitempty"`
	Cwd               string                  `json:"cwd,omitempty"`
	Shell             string                  `json:"shell,omitempty"`
	ScrollbackContent string                  `json:"scrollbackContent,omitempty"`
	RestoredLines     int                     `json:"restoredLines,omitempty"`
	Content           string                  `json:"content,omitempty"`
	Success           *bool                   `json:"success,omitempty"`
	Reason            string                  `json:"reason,omitempty"`
	RequestID         string                  `json:"requestId,omitempty"`
	Attempt           int                     `json:"attempt,omitempty"`
	Message           string                  `json:"message,omitempty"`
	ExitCode          *int                    `json:"exitCode,omitempty"`
	RestoredCount     int                     `json:"restoredCount,omitempty"`
	SkippedCount      int                     `json:"skippedCount,omitempty"`
}

// Codec encodes and decodes protocol messages.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

type sonicCodec struct {
	api sonic.API
}

// NewCodec returns the JSON codec used on the wire.
func NewCodec() Codec {
	return sonicCodec{api: sonic.ConfigStd}
}

func (c sonicCodec) Encode(msg Message) ([]byte, error) {
	return c.api.Marshal(msg)
}

func (c sonicCodec) Decode(data []byte) (Message, error) {
	var msg Message
	err := c.api.Unmarshal(data, &msg)
	return msg, err
}

func boolPtr(b bool) *bool { return &b }

func terminalCreated(t state.Terminal, cfg terminal.SurfaceConfig) Message {
	return Message{
		Command:        CmdTerminalCreated,
		TerminalID:     t.ID,
		TerminalNumber: t.Number,
		Config:         &cfg,
	}
}
