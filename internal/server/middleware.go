package server

import (
	"strconv"
	"strings"

	"github.com/amrivadeneyra/lunari-sub001/internal/orgcontext"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const HeaderCompany = "X-Company-Id"

// CompanyContext resolves the aggregation scope for the request: the
// X-Company-Id header when present, otherwise the configured default
// company for single-tenant deployments.
func (s *Server) CompanyContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderCompany))
		companyID := s.cfg.DefaultCompanyID
		if raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil || parsed == 0 {
				AbortWithError(c, newValidationError("company_id", "invalid_company", "invalid company id"))
				return
			}
			companyID = int64(parsed)
		}
		if companyID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithCompanyID(c.Request.Context(), companyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RatingRateLimit throttles rating submissions per company. A Redis
// failure fails open so ratings are never lost to limiter downtime.
func (s *Server) RatingRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ratingLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		companyID, _ := orgcontext.CompanyIDFromContext(ctx)
		key := companyID.String()

		result, err := s.ratingLimiter.AllowCompany(ctx, key)
		if err != nil {
			c.Next()
			return
		}
		if !result.Allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, key, "rating_submit", "tokens_exhausted")
			}
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.FormatInt(int64(result.RetryAfter.Seconds())+1, 10))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(ctx, key, "rating_submit")
		}
		c.Next()
	}
}
