package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
)

// SurfaceLogEntry is a log entry forwarded by the rendering surface.
type SurfaceLogEntry struct {
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	TerminalID string                 `json:"terminalId"`
	Context    map[string]interface{} `json:"context"`
	Timestamp  string                 `json:"timestamp"`
}

// SurfaceLogRequest is a batch of surface log entries.
type SurfaceLogRequest struct {
	Entries []SurfaceLogEntry `json:"entries" binding:"required"`
}

// maxLogBatch bounds one request.
const maxLogBatch = 500

// StreamLogs writes surface log entries into the backend log so both
// sides of a handshake or replay problem end up in one place.
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req SurfaceLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log request format"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no log entries provided"})
		return
	}
	if len(req.Entries) > maxLogBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many log entries"})
		return
	}

	for _, entry := range req.Entries {
		h.logSurfaceEntry(entry)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func (h *Handlers) logSurfaceEntry(entry SurfaceLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+2)
	fields = append(fields, zap.String("surface_timestamp", entry.Timestamp))
	if entry.TerminalID != "" {
		fields = append(fields, zap.String(logging.TerminalIDKey, entry.TerminalID))
	}
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		h.surfaceLg.Error(entry.Message, fields...)
	case "warn":
		h.surfaceLg.Warn(entry.Message, fields...)
	case "debug", "verbose":
		h.surfaceLg.Debug(entry.Message, fields...)
	default:
		h.surfaceLg.Info(entry.Message, fields...)
	}
}
