package dashboardfeed

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/attrforge/swarm/pkg/common"
)

// streamInterval is the poll-based push cadence for GET /v1/stream. A
// fixed interval, independent of the orchestrator's own timer cadences,
// keeps the dashboard feed decoupled from TopicRun internals.
const streamInterval = 1 * time.Second

// NewRouter builds the gin engine serving spec.md §6's metrics frame and
// StartTopic/StopGeneration control frames.
func NewRouter(mgr *Manager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	v1 := r.Group("/v1")
	v1.GET("/metrics", handleMetrics(mgr))
	v1.GET("/stream", handleStream(mgr))
	v1.POST("/topics", handleStartTopic(mgr))
	v1.POST("/stop", handleStop(mgr))
	v1.GET("/version", handleVersion)

	return r
}

// handleVersion serves GET /v1/version, letting the dashboard collaborator
// pin itself to a known orchestrator build without parsing /v1/metrics.
func handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": common.Version})
}

// handleMetrics serves GET /v1/metrics. With no ?topic query param it
// returns every currently running TopicRun; with one, just that run's
// snapshot (404 if it isn't running).
func handleMetrics(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic := c.Query("topic")
		if topic == "" {
			c.JSON(http.StatusOK, gin.H{"runs": mgr.AllSnapshots()})
			return
		}

		snap, ok := mgr.Snapshot(topic)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("topic %q is not running", topic)})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// handleStream serves GET /v1/stream?topic=T: a poll-based push of the
// named topic's Snapshot every streamInterval, until the client
// disconnects or the run ends (Open Question decision: poll-based, not a
// persistent WebSocket, per DESIGN.md).
func handleStream(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic := c.Query("topic")
		if topic == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topic query parameter is required"})
			return
		}

		ticker := time.NewTicker(streamInterval)
		defer ticker.Stop()

		c.Stream(func(_ io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-ticker.C:
				snap, ok := mgr.Snapshot(topic)
				if !ok {
					return false
				}
				c.SSEvent("metrics", snap)
				return true
			}
		})
	}
}

// handleStartTopic serves POST /v1/topics: the StartTopic control frame.
func handleStartTopic(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := mgr.StartTopic(req); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"topic": req.Topic, "status": "started"})
	}
}

// handleStop serves POST /v1/stop: the StopGeneration control frame.
func handleStop(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StopRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := mgr.StopTopic(req.Topic); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"topic": req.Topic, "status": "stopping"})
	}
}
