package server

import (
	"net/http"
	"time"

	"github.com/blackplume233/remotemcp/internal/auth"
	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/blackplume233/remotemcp/internal/dispatch"
	"github.com/blackplume233/remotemcp/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

func (l *Loop) buildRouter(rs *runState) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(l.cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: l.cfg.CorsOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Cache-Control", "Authorization", "X-Remotemcp-Token"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	l.registerRoutes(r, rs)
	return r
}

func (l *Loop) registerRoutes(r *gin.Engine, rs *runState) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(rs.started).String(),
			"server":  l.cfg.Name,
			"version": version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := !l.state.ShouldExit() && !l.state.Queue().Closed()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(rs.started).String(),
			"server":  l.cfg.Name,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/", auth.Middleware(l.cfg.Auth))

	api.GET("/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tools": l.dispatcher.Catalog().List()})
	})

	api.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, l.session())
	})

	api.POST("/call", func(c *gin.Context) {
		var req dispatch.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call payload: " + err.Error()})
			return
		}
		resp := l.dispatcher.DispatchRequest(c.Request.Context(), req)
		c.JSON(callStatus(resp), resp)
	})

	api.GET("/sse", func(c *gin.Context) {
		l.serveStream(c, rs)
	})

	api.POST("/messages/:stream", func(c *gin.Context) {
		st, ok := rs.hub.get(c.Param("stream"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown stream"})
			return
		}
		var req dispatch.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call payload: " + err.Error()})
			return
		}
		go func() {
			resp := l.dispatcher.DispatchRequest(st.ctx, req)
			if err := st.send(streamEvent{name: "result", data: resp}); err != nil {
				log.Debug().Str("stream", st.id).Str("operation", req.Operation).Msg("result dropped: stream closed")
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "id": req.ID})
	})
}

// serveStream holds one SSE connection open. The first event names the endpoint
// the client posts calls to; results and heartbeats follow until either side leaves.
func (l *Loop) serveStream(c *gin.Context, rs *runState) {
	st, err := rs.hub.open(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server stopping"})
		return
	}
	defer rs.hub.remove(st.id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("endpoint", "/messages/"+st.id)
	c.Writer.Flush()
	log.Debug().Str("stream", st.id).Msg("stream opened")

	heartbeat := time.NewTicker(l.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-st.ctx.Done():
			log.Debug().Str("stream", st.id).Msg("stream closed")
			return
		case ev := <-st.ch:
			c.SSEvent(ev.name, ev.data)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", l.session())
			c.Writer.Flush()
		}
	}
}

func (l *Loop) session() bridge.Status {
	l.mu.Lock()
	status := l.status
	l.mu.Unlock()
	if status != nil {
		return status()
	}
	stats := l.state.Executor().Stats()
	out := bridge.Status{
		Running:   l.Running(),
		TickCount: stats.TickCount,
		Pending:   stats.Pending,
		Server:    bridge.ServerStopped,
	}
	if out.Running {
		out.Server = bridge.ServerRunning
	}
	return out
}

func callStatus(resp dispatch.Response) int {
	if resp.OK() {
		return http.StatusOK
	}
	switch resp.Error.Kind {
	case dispatch.KindUnknownOperation:
		return http.StatusNotFound
	case dispatch.KindShutdown:
		return http.StatusServiceUnavailable
	case dispatch.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

var _ bridge.Starter = (*Loop)(nil)
