package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetAverageResponseTime(c *gin.Context) {
	window, err := parseWindow(c.Query("from"), c.Query("to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.qualitySvc.AverageResponseTime(c.Request.Context(), window)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOnTimeRate(c *gin.Context) {
	window, err := parseWindow(c.Query("from"), c.Query("to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.qualitySvc.OnTimeRate(c.Request.Context(), window)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetResolutionRate(c *gin.Context) {
	window, err := parseWindow(c.Query("from"), c.Query("to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.qualitySvc.ResolutionRate(c.Request.Context(), window)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSatisfactionAverage(c *gin.Context) {
	window, err := parseWindow(c.Query("from"), c.Query("to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.qualitySvc.SatisfactionAverage(c.Request.Context(), window)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMetricsSummary(c *gin.Context) {
	window, err := parseWindow(c.Query("from"), c.Query("to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.qualitySvc.Summary(c.Request.Context(), window)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
