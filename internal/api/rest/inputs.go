package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenControllerCore/internal/types"
	"github.com/gin-gonic/gin"
)

func inputIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaInput, http.StatusBadRequest), "Invalid input index", c.Param("index")))
		return 0, false
	}
	return index, true
}

// POST /api/v1/inputs/analog/:index
func (s *Server) setAnalogInput(c *gin.Context) {
	index, ok := inputIndex(c)
	if !ok {
		return
	}

	var req struct {
		Value *uint16 `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaInput, http.StatusBadRequest), "Invalid request body", err.Error()))
		return
	}

	if err := s.controller.SetAnalogInput(index, *req.Value); err != nil {
		s.fail(c, types.AreaInput, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"index": index, "value": *req.Value})
}

// POST /api/v1/inputs/digital/:index
func (s *Server) setDigitalInput(c *gin.Context) {
	index, ok := inputIndex(c)
	if !ok {
		return
	}

	var req struct {
		Pressed *bool `json:"pressed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaInput, http.StatusBadRequest), "Invalid request body", err.Error()))
		return
	}

	if err := s.controller.SetDigitalInput(index, *req.Pressed); err != nil {
		s.fail(c, types.AreaInput, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"index": index, "pressed": *req.Pressed})
}
