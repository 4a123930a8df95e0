// Package adminapi exposes the cache's administrative surface over HTTP:
// statistics, clearing, threshold changes, and hit-rate driven tuning.
// It is a thin control layer; all policy lives in the cache itself.
package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hostpilot/semcache"
)

// Handler serves the cache administration endpoints.
type Handler struct {
	cache  *semcache.Cache
	logger *zap.Logger
}

// New creates a Handler. If logger is nil, a no-op logger is used.
func New(cache *semcache.Cache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cache: cache, logger: logger}
}

// Register mounts the admin routes under /api/cache.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api/cache")
	g.GET("/stats", h.getStats)
	g.POST("/clear", h.clear)
	g.POST("/threshold", h.setThreshold)
	g.GET("/performance", h.getPerformance)
	g.POST("/optimize", h.optimize)
}

// StatsResponse is the stats endpoint payload.
type StatsResponse struct {
	Entries        int     `json:"entries"`
	ValidEntries   int     `json:"valid_entries"`
	ExpiredEntries int     `json:"expired_entries"`
	MaxEntries     int     `json:"max_entries"`
	TTLSeconds     float64 `json:"ttl_seconds"`
	Tier           string  `json:"tier"`
	TierValue      float64 `json:"tier_value"`

	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Evictions    uint64  `json:"evictions"`
	TotalQueries uint64  `json:"total_queries"`
	HitRate      float64 `json:"hit_rate"`

	MemoryBytes int64 `json:"memory_bytes"`
	LSHBuckets  int   `json:"lsh_buckets"`

	PendingComputations int `json:"pending_computations"`
	CoalescedWaiters    int `json:"coalesced_waiters"`

	Recommendations []Recommendation `json:"recommendations"`
}

// Recommendation is a tuning suggestion derived from observed statistics.
type Recommendation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// StatusResponse acknowledges a state-changing request.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse carries a request failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ThresholdRequest selects a similarity tier.
type ThresholdRequest struct {
	Threshold string `json:"threshold" binding:"required"`
}

// PerformanceResponse summarizes cache effectiveness.
type PerformanceResponse struct {
	Score           int              `json:"performance_score"`
	HitRate         float64          `json:"hit_rate"`
	MemoryMB        float64          `json:"memory_usage_mb"`
	TotalQueries    uint64           `json:"total_queries"`
	Efficiency      string           `json:"cache_efficiency"`
	Recommendations []Recommendation `json:"recommendations"`
}

// OptimizeResponse reports the outcome of an auto-tune pass.
type OptimizeResponse struct {
	Applied bool    `json:"applied"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	HitRate float64 `json:"hit_rate"`
	Message string  `json:"message"`
}

func (h *Handler) getStats(c *gin.Context) {
	s := h.cache.Stats()
	c.JSON(http.StatusOK, statsResponse(s))
}

func (h *Handler) clear(c *gin.Context) {
	if err := h.cache.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	h.logger.Info("cache cleared via admin api")
	c.JSON(http.StatusOK, StatusResponse{Status: "success", Message: "cache cleared"})
}

func (h *Handler) setThreshold(c *gin.Context) {
	var req ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	tier, err := semcache.ParseTier(req.Threshold)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.cache.SetThreshold(tier); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("threshold changed via admin api", zap.String("tier", tier.String()))
	c.JSON(http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "similarity threshold set to " + tier.String(),
	})
}

func (h *Handler) getPerformance(c *gin.Context) {
	s := h.cache.Stats()
	c.JSON(http.StatusOK, PerformanceResponse{
		Score:           performanceScore(s),
		HitRate:         s.HitRate,
		MemoryMB:        float64(s.MemoryBytes) / (1024 * 1024),
		TotalQueries:    s.TotalQueries,
		Efficiency:      efficiencyRating(s.HitRate),
		Recommendations: recommendations(s),
	})
}

func (h *Handler) optimize(c *gin.Context) {
	adj, err := h.cache.AutoTune()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := OptimizeResponse{
		Applied: adj.Applied,
		From:    adj.From.String(),
		To:      adj.To.String(),
		HitRate: adj.HitRate,
	}
	if adj.Applied {
		resp.Message = "similarity tier adjusted from " + adj.From.String() + " to " + adj.To.String()
		h.logger.Info("cache auto-tuned via admin api",
			zap.String("from", adj.From.String()),
			zap.String("to", adj.To.String()),
		)
	} else {
		resp.Message = "no adjustment needed"
	}
	c.JSON(http.StatusOK, resp)
}

func statsResponse(s semcache.Stats) StatsResponse {
	return StatsResponse{
		Entries:        s.Entries,
		ValidEntries:   s.ValidEntries,
		ExpiredEntries: s.ExpiredEntries,
		MaxEntries:     s.MaxEntries,
		TTLSeconds:     s.TTL.Seconds(),
		Tier:           s.Tier.String(),
		TierValue:      s.TierValue,

		Hits:         s.Hits,
		Misses:       s.Misses,
		Evictions:    s.Evictions,
		TotalQueries: s.TotalQueries,
		HitRate:      s.HitRate,

		MemoryBytes: s.MemoryBytes,
		LSHBuckets:  s.Buckets,

		PendingComputations: s.PendingComputations,
		CoalescedWaiters:    s.CoalescedWaiters,

		Recommendations: recommendations(s),
	}
}

// performanceScore weighs hit rate, remaining capacity and query volume
// into a 0-100 score.
func performanceScore(s semcache.Stats) int {
	memoryEfficiency := 0.0
	if s.MaxEntries > 0 {
		memoryEfficiency = float64(s.MaxEntries-s.Entries) / float64(s.MaxEntries) * 100
	}
	queryVolume := float64(s.TotalQueries) / 10
	if queryVolume > 100 {
		queryVolume = 100
	}

	score := s.HitRate*0.6 + memoryEfficiency*0.2 + queryVolume*0.2
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return int(score)
}

func efficiencyRating(hitRate float64) string {
	switch {
	case hitRate >= 70:
		return "excellent"
	case hitRate >= 50:
		return "good"
	case hitRate >= 30:
		return "fair"
	default:
		return "poor"
	}
}

func recommendations(s semcache.Stats) []Recommendation {
	recs := []Recommendation{}

	if s.HitRate < 30 {
		recs = append(recs, Recommendation{
			Type:    "threshold",
			Message: "low hit rate; consider the broad or loose similarity tier",
			Action:  "POST /api/cache/threshold",
		})
	}
	if s.HitRate > 85 {
		recs = append(recs, Recommendation{
			Type:    "threshold",
			Message: "excellent hit rate; the strong tier would improve precision",
			Action:  "POST /api/cache/threshold",
		})
	}
	if s.MaxEntries > 0 && s.Entries*5 >= s.MaxEntries*4 {
		recs = append(recs, Recommendation{
			Type:    "memory",
			Message: "cache is near capacity; clear old entries or raise max entries",
			Action:  "POST /api/cache/clear",
		})
	}
	if s.TotalQueries < 50 {
		recs = append(recs, Recommendation{
			Type:    "usage",
			Message: "low query volume; effectiveness will improve with more usage",
			Action:  "continue normal operations",
		})
	}

	return recs
}
