package instance

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loykin/displayhold/internal/metrics"
)

// router serves the wire contract of one Service.
// Endpoints:
//
//	GET  /v1/status     -> Snapshot
//	PUT  /v1/status     body: {"status":"user"} -> Snapshot
//	PUT  /v1/hold       body: {"hold_process_id":123} -> Snapshot
//	POST /v1/stop-hold  -> 202 {"ok":true}; the process then begins shutdown
//	GET  /metrics       (optional) Prometheus exposition
type router struct {
	svc     *Service
	metrics bool
}

func newRouter(svc *Service, withMetrics bool) *router {
	return &router{svc: svc, metrics: withMetrics}
}

func (r *router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	v1 := g.Group("/v1")
	v1.GET("/status", r.handleStatus)
	v1.PUT("/status", r.handleSetStatus)
	v1.PUT("/hold", r.handleSetHold)
	v1.POST("/stop-hold", r.handleStopHold)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// --- Messages ---

type statusRequest struct {
	Status Status `json:"status"`
}

type holdRequest struct {
	HoldProcessID *int `json:"hold_process_id"`
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// --- Handlers ---

func (r *router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.svc.Snapshot())
}

func (r *router) handleSetStatus(c *gin.Context) {
	req := statusRequest{Status: StatusUnknown}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Status == StatusUnknown {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "status required: busy, user or on_hold"})
		return
	}
	r.svc.SetStatus(req.Status)
	writeJSON(c, http.StatusOK, r.svc.Snapshot())
}

func (r *router) handleSetHold(c *gin.Context) {
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.HoldProcessID == nil || *req.HoldProcessID < 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "hold_process_id must be >= 0"})
		return
	}
	r.svc.SetHoldProcessID(*req.HoldProcessID)
	writeJSON(c, http.StatusOK, r.svc.Snapshot())
}

func (r *router) handleStopHold(c *gin.Context) {
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
	// respond first; the callee is about to go away
	go r.svc.StopHold()
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
