package rest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/KevinKickass/OpenControllerCore/internal/hwa"
	"github.com/KevinKickass/OpenControllerCore/internal/interfaces"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
	"github.com/KevinKickass/OpenControllerCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status, err := s.controller.Status(c.Request.Context())
	if err != nil {
		s.fail(c, types.AreaSystem, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/backup
func (s *Server) backup(c *gin.Context) {
	frames, err := s.controller.Backup(c.Request.Context())
	if err != nil {
		s.fail(c, types.AreaBackup, err)
		return
	}

	s.logger.Info("Backup captured", zap.Int("frames", len(frames)))

	c.JSON(http.StatusOK, gin.H{
		"frames": encodeFrames(frames),
		"count":  len(frames),
	})
}

// POST /api/v1/restore
func (s *Server) restore(c *gin.Context) {
	var req struct {
		Frames []string `json:"frames" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaRestore, http.StatusBadRequest), "Invalid request body", err.Error()))
		return
	}

	frames, err := decodeFrames(req.Frames)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaRestore, http.StatusBadRequest), "Invalid frame", err.Error()))
		return
	}

	applied, err := s.controller.Restore(c.Request.Context(), frames)
	if err != nil {
		s.fail(c, types.AreaRestore, err)
		return
	}

	s.logger.Info("Backup restored", zap.Int("frames", len(frames)), zap.Int("applied", applied))

	c.JSON(http.StatusOK, gin.H{
		"applied": applied,
		"total":   len(frames),
	})
}

// POST /api/v1/sysex
func (s *Server) sysEx(c *gin.Context) {
	var req struct {
		Frame string `json:"frame" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaSysEx, http.StatusBadRequest), "Invalid request body", err.Error()))
		return
	}

	frame, err := hex.DecodeString(req.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaSysEx, http.StatusBadRequest), "Frame is not hex", err.Error()))
		return
	}

	responses, err := s.controller.SysEx(c.Request.Context(), frame)
	if err != nil {
		s.fail(c, types.AreaSysEx, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"responses": encodeFrames(responses),
	})
}

func encodeFrames(frames [][]byte) []string {
	out := make([]string, 0, len(frames))
	for _, frame := range frames {
		out = append(out, hex.EncodeToString(frame))
	}
	return out
}

func decodeFrames(frames []string) ([][]byte, error) {
	out := make([][]byte, 0, len(frames))
	for i, f := range frames {
		raw, err := hex.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// fail maps controller errors onto status codes.
func (s *Server) fail(c *gin.Context, area string, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"

	switch {
	case errors.Is(err, sysconfig.ErrInvalidIndex), errors.Is(err, hwa.ErrInputRange):
		status, message = http.StatusNotFound, "No such index"
	case errors.Is(err, sysconfig.ErrInvalidValue):
		status, message = http.StatusBadRequest, "Invalid value"
	case errors.Is(err, sysconfig.ErrNotSupported):
		status, message = http.StatusUnprocessableEntity, "Not supported"
	case errors.Is(err, interfaces.ErrNoVirtualInputs):
		status, message = http.StatusConflict, "Hardware backend has no virtual inputs"
	case errors.Is(err, system.ErrInvalidTransition):
		status, message = http.StatusConflict, "Backup or restore in progress"
	case errors.Is(err, interfaces.ErrFrameIgnored):
		status, message = http.StatusUnprocessableEntity, "Frame not addressed to this device"
	case errors.Is(err, interfaces.ErrStopped):
		status, message = http.StatusServiceUnavailable, "Controller not running"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, types.NewErrorResponse(types.ErrorCode(area, status), message, err.Error()))
}
