package server

import (
	"errors"
	"net/http"

	"github.com/amrivadeneyra/lunari-sub001/internal/sweep"
	"github.com/gin-gonic/gin"
)

type sweepRunResponse struct {
	Success       bool   `json:"success"`
	Processed     int    `json:"processed"`
	HelpConfirmed int    `json:"fr3_help"`
	Inactive      int    `json:"fr2_fr4_inactive"`
	Message       string `json:"message"`
}

type sweepRunError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RunSweep triggers a single sweep pass on demand. A pass that overlaps
// a running one is skipped and reported as such.
func (s *Server) RunSweep(c *gin.Context) {
	summary, err := s.sweeper.RunOnce(c.Request.Context())
	if errors.Is(err, sweep.ErrRunInProgress) {
		c.JSON(http.StatusOK, sweepRunResponse{
			Success: true,
			Message: "sweep already in progress, skipped",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, sweepRunError{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, sweepRunResponse{
		Success:       true,
		Processed:     summary.Processed,
		HelpConfirmed: summary.HelpConfirmed,
		Inactive:      summary.Inactive,
		Message:       "sweep completed",
	})
}
