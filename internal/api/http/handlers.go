package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/dispatch"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/terminal"
)

// Deleter performs a deletion confirmed by the rendering surface.
type Deleter interface {
	Connected() bool
	RequestDeletion(ctx context.Context, terminalID string) error
}

// Options configures Handlers.
type Options struct {
	Coordinator dispatch.Coordinator
	Sessions    dispatch.SessionCoordinator
	// Deleter is optional. Without a connected surface deletions go
	// straight to the coordinator.
	Deleter Deleter
	Logger  *zap.Logger
	Version string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	coord     dispatch.Coordinator
	sessions  dispatch.SessionCoordinator
	deleter   Deleter
	logger    *zap.Logger
	surfaceLg *zap.Logger
	version   string
	startedAt time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(opts Options) *Handlers {
	logger := logging.Component(opts.Logger, "http")
	return &Handlers{
		coord:     opts.Coordinator,
		sessions:  opts.Sessions,
		deleter:   opts.Deleter,
		logger:    logger,
		surfaceLg: logging.Component(opts.Logger, "surface"),
		version:   opts.Version,
		startedAt: time.Now(),
	}
}

// Register installs every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/terminals", h.ListTerminals)
	api.POST("/terminals", h.CreateTerminal)
	api.DELETE("/terminals/:id", h.DeleteTerminal)
	api.POST("/terminals/:id/input", h.WriteInput)
	api.POST("/terminals/:id/resize", h.ResizeTerminal)
	api.POST("/terminals/:id/focus", h.FocusTerminal)

	api.POST("/session/save", h.SaveSession)
	api.POST("/session/restore", h.RestoreSession)

	api.GET("/diagnostics", h.Diagnostics)
	api.POST("/logs", h.StreamLogs)
}

// Health reports registry integrity and surface connectivity.
func (h *Handlers) Health(c *gin.Context) {
	diag := h.coord.Diagnostics()
	status := "healthy"
	if !diag.Health.Healthy {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           status,
		"version":          h.version,
		"terminals":        len(diag.Terminals),
		"surfaceConnected": h.deleter != nil && h.deleter.Connected(),
		"uptimeSeconds":    int64(time.Since(h.startedAt).Seconds()),
	})
}

// ListTerminals lists registered terminals in creation order.
func (h *Handlers) ListTerminals(c *gin.Context) {
	terminals := h.coord.Terminals()
	c.JSON(http.StatusOK, gin.H{
		"terminals": terminals,
		"count":     len(terminals),
	})
}

// CreateTerminalRequest is the body of POST /api/terminals.
type CreateTerminalRequest struct {
	Name  string `json:"name"`
	Cwd   string `json:"cwd"`
	Shell string `json:"shell"`
	Cols  int    `json:"cols" binding:"omitempty,min=1"`
	Rows  int    `json:"rows" binding:"omitempty,min=1"`
	Focus *bool  `json:"focus"`
}

// CreateTerminal spawns a terminal. It is focused unless focus is false.
func (h *Handlers) CreateTerminal(c *gin.Context) {
	var req CreateTerminalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	focus := req.Focus == nil || *req.Focus

	t, err := h.coord.CreateTerminal(c.Request.Context(), terminal.CreateOptions{
		Name:  req.Name,
		Cwd:   req.Cwd,
		Shell: req.Shell,
		Cols:  req.Cols,
		Rows:  req.Rows,
		Focus: focus,
	})
	if err != nil {
		h.fail(c, "create terminal", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"terminal": t})
}

// DeleteTerminal closes a terminal. With a surface attached the surface
// confirms the deletion first.
func (h *Handlers) DeleteTerminal(c *gin.Context) {
	termID := c.Param("id")
	var err error
	if h.deleter != nil && h.deleter.Connected() {
		err = h.deleter.RequestDeletion(c.Request.Context(), termID)
	} else {
		err = h.coord.DeleteTerminal(c.Request.Context(), termID)
	}
	if err != nil {
		h.fail(c, "delete terminal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "terminalId": termID})
}

// InputRequest is the body of POST /api/terminals/:id/input.
type InputRequest struct {
	Data string `json:"data" binding:"required"`
}

// WriteInput writes keystrokes to a terminal.
func (h *Handlers) WriteInput(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.coord.WriteInput(c.Request.Context(), c.Param("id"), req.Data); err != nil {
		h.fail(c, "write input", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResizeRequest is the body of POST /api/terminals/:id/resize.
type ResizeRequest struct {
	Cols int `json:"cols" binding:"required"`
	Rows int `json:"rows" binding:"required"`
}

// ResizeTerminal changes a terminal's dimensions.
func (h *Handlers) ResizeTerminal(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.coord.ResizeTerminal(c.Param("id"), req.Cols, req.Rows); err != nil {
		h.fail(c, "resize terminal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// FocusTerminal makes a terminal active.
func (h *Handlers) FocusTerminal(c *gin.Context) {
	if err := h.coord.FocusTerminal(c.Param("id")); err != nil {
		h.fail(c, "focus terminal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SaveSession persists the open terminals.
func (h *Handlers) SaveSession(c *gin.Context) {
	n, err := h.sessions.Save(c.Request.Context())
	if err != nil {
		h.fail(c, "save session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "saved": n})
}

// RestoreSession recreates the saved terminals. A skipped restore is not
// an error; the result carries the reason.
func (h *Handlers) RestoreSession(c *gin.Context) {
	res, err := h.sessions.Restore(c.Request.Context())
	if err != nil {
		h.fail(c, "restore session", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Diagnostics returns registry, lifecycle, health and metrics state.
func (h *Handlers) Diagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Diagnostics())
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := StatusFor(err)
	fields := []zap.Field{zap.String("op", op), zap.Int("status", status), zap.Error(err)}
	if id := c.Param("id"); id != "" {
		fields = append(fields, zap.String(logging.TerminalIDKey, id))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
