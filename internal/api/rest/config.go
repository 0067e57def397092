package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/types"
	"github.com/gin-gonic/gin"
)

type configAddress struct {
	block   sysconfig.Block
	section uint8
	index   int
}

// parseAddress resolves :block/:section/:index. Blocks and sections may be
// given by name or by number.
func (s *Server) parseAddress(c *gin.Context) (configAddress, error) {
	var addr configAddress

	block, ok := sysconfig.BlockByName(c.Param("block"))
	if !ok {
		return addr, fmt.Errorf("unknown block %q", c.Param("block"))
	}
	addr.block = block

	section, ok := s.controller.Layout().SectionByName(block, c.Param("section"))
	if !ok {
		return addr, fmt.Errorf("unknown section %q in block %s", c.Param("section"), block)
	}
	addr.section = section

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return addr, fmt.Errorf("invalid index %q", c.Param("index"))
	}
	addr.index = index

	return addr, nil
}

func (a configAddress) response(layout sysconfig.Layout, value uint16) gin.H {
	return gin.H{
		"block":   a.block.String(),
		"section": layout[a.block][a.section].Name,
		"index":   a.index,
		"value":   value,
	}
}

// GET /api/v1/config/:block/:section/:index
func (s *Server) getConfig(c *gin.Context) {
	addr, err := s.parseAddress(c)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCode(types.AreaConfig, http.StatusNotFound), "Unknown config address", err.Error()))
		return
	}

	value, err := s.controller.GetConfig(c.Request.Context(), addr.block, addr.section, addr.index)
	if err != nil {
		s.fail(c, types.AreaConfig, err)
		return
	}

	c.JSON(http.StatusOK, addr.response(s.controller.Layout(), value))
}

// PUT /api/v1/config/:block/:section/:index
func (s *Server) setConfig(c *gin.Context) {
	addr, err := s.parseAddress(c)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCode(types.AreaConfig, http.StatusNotFound), "Unknown config address", err.Error()))
		return
	}

	var req struct {
		Value *uint16 `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(types.AreaConfig, http.StatusBadRequest), "Invalid request body", err.Error()))
		return
	}

	if err := s.controller.SetConfig(c.Request.Context(), addr.block, addr.section, addr.index, *req.Value); err != nil {
		s.fail(c, types.AreaConfig, err)
		return
	}

	c.JSON(http.StatusOK, addr.response(s.controller.Layout(), *req.Value))
}
