// Package api provides the REST API for monitoring and configuring a running
// dfam2cv engine
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/dfam2cv/pkg/ccmap"
	"github.com/james-see/dfam2cv/pkg/engine"
	"github.com/james-see/dfam2cv/pkg/event"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/store"
)

// @title dfam2cv API
// @version 1.0
// @description Monitor and configure a MIDI to CV engine for the Moog DFAM
// @host localhost:8080
// @BasePath /api/v1

// Config wires a Server
type Config struct {
	Runner  *engine.Runner
	Monitor *hw.Monitor
	// Controls are the front-panel mode switch and sync button; nil disables
	// the controls routes
	Controls *hw.Switches
	// Store persists configuration changes; nil keeps them in memory
	Store  *store.File
	Logger *slog.Logger
}

// Server serves the API for one engine
type Server struct {
	runner   *engine.Runner
	monitor  *hw.Monitor
	controls *hw.Switches
	store    *store.File
	log      *slog.Logger
}

// NewServer creates a Server
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		runner:   cfg.Runner,
		monitor:  cfg.Monitor,
		controls: cfg.Controls,
		store:    cfg.Store,
		log:      cfg.Logger.With("component", "api"),
	}
}

// Router builds the gin engine with every route
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/state", s.getState)
		v1.GET("/outputs", s.getOutputs)
		v1.POST("/events", s.postEvents)
		v1.GET("/config", s.getConfig)
		v1.PUT("/config", s.putConfig)
		v1.POST("/resync", s.postResync)
		v1.POST("/all-notes-off", s.postAllNotesOff)
		v1.POST("/calibrate", s.postCalibrate)
		v1.DELETE("/calibrate", s.deleteCalibrate)
		v1.GET("/controls", s.getControls)
		v1.POST("/controls", s.postControls)
		v1.GET("/ccmap", s.getCCMap)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Run serves the API on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API shutdown failed: %w", err)
	}
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "dfam2cv",
	})
}

func (s *Server) exec(c *gin.Context, fn func(*engine.Engine)) bool {
	if err := s.runner.Exec(c.Request.Context(), fn); err != nil {
		status := http.StatusServiceUnavailable
		if !errors.Is(err, engine.ErrStopped) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// getState godoc
// @Summary Engine state
// @Description Returns both CV lanes, the sequencer position and the tempo
// @Tags state
// @Produce json
// @Success 200 {object} engine.State
// @Router /api/v1/state [get]
func (s *Server) getState(c *gin.Context) {
	var st engine.State
	if s.exec(c, func(e *engine.Engine) { st = e.State() }) {
		c.JSON(http.StatusOK, st)
	}
}

// getOutputs godoc
// @Summary Hardware outputs
// @Description Returns the last DAC code, gate and velocity of each lane
// @Tags state
// @Produce json
// @Success 200 {object} hw.MonitorState
// @Failure 404 {object} map[string]string
// @Router /api/v1/outputs [get]
func (s *Server) getOutputs(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no output monitor attached"})
		return
	}
	c.JSON(http.StatusOK, s.monitor.Snapshot())
}

// postEvents godoc
// @Summary Inject MIDI events
// @Description Queues one event or an array of events
// @Tags events
// @Accept json
// @Produce json
// @Param events body []event.Event true "Events"
// @Success 202 {object} map[string]int
// @Failure 400 {object} map[string]string
// @Router /api/v1/events [post]
func (s *Server) postEvents(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var events []event.Event
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var ev event.Event
		err = binding.JSON.BindBody(trimmed, &ev)
		events = []event.Event{ev}
	} else {
		err = binding.JSON.BindBody(trimmed, &events)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("event %d: %v", i, err)})
			return
		}
	}
	accepted := 0
	for _, ev := range events {
		if s.runner.Submit(ev) {
			accepted++
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted, "dropped": len(events) - accepted})
}

// getConfig godoc
// @Summary Current configuration
// @Description Returns the device profile as JSON, or YAML with format=yaml
// @Tags config
// @Produce json
// @Param format query string false "json or yaml"
// @Success 200 {object} engine.Profile
// @Router /api/v1/config [get]
func (s *Server) getConfig(c *gin.Context) {
	var p engine.Profile
	if !s.exec(c, func(e *engine.Engine) { p = e.Snapshot() }) {
		return
	}
	if c.Query("format") == "yaml" {
		var buf bytes.Buffer
		if err := store.ExportYAML(&buf, p); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/yaml", buf.Bytes())
		return
	}
	c.JSON(http.StatusOK, p)
}

// putConfig godoc
// @Summary Replace configuration
// @Description Applies a device profile and persists it when a store is attached
// @Tags config
// @Accept json
// @Produce json
// @Param profile body engine.Profile true "Profile"
// @Success 200 {object} engine.Profile
// @Failure 400 {object} map[string]string
// @Router /api/v1/config [put]
func (s *Server) putConfig(c *gin.Context) {
	p := engine.DefaultProfile()
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var applied engine.Profile
	if !s.exec(c, func(e *engine.Engine) {
		e.Apply(p)
		applied = e.Snapshot()
	}) {
		return
	}
	if s.store != nil {
		if err := s.store.Save(applied); err != nil {
			s.log.Error("failed to persist config", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, applied)
}

// save persists the engine's current profile when a store is attached
func (s *Server) save(c *gin.Context) bool {
	if s.store == nil {
		return true
	}
	var p engine.Profile
	if !s.exec(c, func(e *engine.Engine) { p = e.Snapshot() }) {
		return false
	}
	if err := s.store.Save(p); err != nil {
		s.log.Error("failed to persist config", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// postResync godoc
// @Summary Resync the sequencer
// @Description Drives the external sequencer back to step 1
// @Tags sequencer
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/v1/resync [post]
func (s *Server) postResync(c *gin.Context) {
	var step uint8
	if s.exec(c, func(e *engine.Engine) {
		e.AdvanceToBeginning()
		step = e.State().Sequencer.Step
	}) {
		c.JSON(http.StatusOK, gin.H{"step": step})
	}
}

// postAllNotesOff godoc
// @Summary Panic
// @Description Releases every held note on both lanes
// @Tags events
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/all-notes-off [post]
func (s *Server) postAllNotesOff(c *gin.Context) {
	if s.exec(c, func(e *engine.Engine) { e.AllNotesOff() }) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// CalibrateRequest selects an anchor and optionally reports its measured voltage
type CalibrateRequest struct {
	Channel string   `json:"channel" binding:"required"`
	Point   int      `json:"point"`
	Volts   *float64 `json:"volts,omitempty"`
}

// postCalibrate godoc
// @Summary Calibrate an anchor
// @Description Outputs the anchor voltage; with volts, corrects the anchor first
// @Tags config
// @Accept json
// @Produce json
// @Param request body CalibrateRequest true "Anchor"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/calibrate [post]
func (s *Server) postCalibrate(c *gin.Context) {
	var req CalibrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := hw.ParseChannel(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var code uint16
	adjusted := false
	var scale float64
	if !s.exec(c, func(e *engine.Engine) {
		if req.Volts != nil {
			adjusted = e.AdjustCalibration(ch, req.Point, *req.Volts)
		}
		code = e.Calibrate(ch, req.Point)
		p := e.Snapshot()
		cal := p.A.Calibration
		if ch == hw.ChannelB {
			cal = p.B.Calibration
		}
		if req.Point >= 0 && req.Point < len(cal) {
			scale = cal[req.Point]
		}
	}) {
		return
	}
	if req.Volts != nil && !adjusted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anchor cannot be adjusted", "code": code})
		return
	}
	if adjusted && !s.save(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch.String(), "point": req.Point, "code": code, "scale": scale, "adjusted": adjusted})
}

// deleteCalibrate godoc
// @Summary Leave calibration
// @Description Releases held anchors and restores the note outputs
// @Tags config
// @Produce json
// @Param channel query string false "a or b (default both)"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /api/v1/calibrate [delete]
func (s *Server) deleteCalibrate(c *gin.Context) {
	lanes := []hw.Channel{hw.ChannelA, hw.ChannelB}
	if q := c.Query("channel"); q != "" {
		ch, err := hw.ParseChannel(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lanes = []hw.Channel{ch}
	}
	if s.exec(c, func(e *engine.Engine) {
		for _, ch := range lanes {
			e.EndCalibration(ch)
		}
	}) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ControlsRequest operates the front-panel controls. A nil ClockControlled
// leaves the mode switch where it is.
type ControlsRequest struct {
	ClockControlled *bool `json:"clockControlled,omitempty"`
	Sync            bool  `json:"sync"`
}

// getControls godoc
// @Summary Front-panel controls
// @Description Returns the mode switch position
// @Tags sequencer
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 404 {object} map[string]string
// @Router /api/v1/controls [get]
func (s *Server) getControls(c *gin.Context) {
	if s.controls == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no controls attached"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clockControlled": s.controls.ModeSwitch()})
}

// postControls godoc
// @Summary Operate front-panel controls
// @Description Moves the mode switch and/or presses sync; the engine sees the change on its next switch poll
// @Tags sequencer
// @Accept json
// @Produce json
// @Param request body ControlsRequest true "Controls"
// @Success 202 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/controls [post]
func (s *Server) postControls(c *gin.Context) {
	if s.controls == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no controls attached"})
		return
	}
	var req ControlsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ClockControlled != nil {
		s.controls.SetModeSwitch(*req.ClockControlled)
	}
	if req.Sync {
		s.controls.PressSync()
	}
	c.JSON(http.StatusAccepted, gin.H{"clockControlled": s.controls.ModeSwitch(), "sync": req.Sync})
}

// getCCMap godoc
// @Summary Active CC map
// @Description Lists the controller numbers the engine responds to
// @Tags config
// @Produce json
// @Success 200 {array} ccmap.Entry
// @Router /api/v1/ccmap [get]
func (s *Server) getCCMap(c *gin.Context) {
	var entries []ccmap.Entry
	if s.exec(c, func(e *engine.Engine) { entries = e.CCMap().Entries() }) {
		c.JSON(http.StatusOK, entries)
	}
}
