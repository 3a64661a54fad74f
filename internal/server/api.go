package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/demo"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/mode"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/session"
)

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Host string
	Port int
}

// DataResponse is the success envelope.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// API is the HTTP control surface: session snapshots, speaker and
// switching operations, demo replay and the websocket feed.
type API struct {
	manager *Manager
	hub     *Hub
	roles   []string
	engine  *gin.Engine
	server  *http.Server
	log     zerolog.Logger
}

func NewAPI(cfg HTTPConfig, manager *Manager, hub *Hub, roles []string, log zerolog.Logger) *API {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	a := &API{
		manager: manager,
		hub:     hub,
		roles:   roles,
		engine:  gin.New(),
		log:     log.With().Str("component", "http").Logger(),
	}
	a.engine.Use(gin.Recovery(), a.requestLogger())
	a.routes()

	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Handler returns the gin engine.
func (a *API) Handler() http.Handler {
	return a.engine
}

func (a *API) routes() {
	a.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.engine.GET("/ws", gin.WrapH(a.hub))

	api := a.engine.Group("/api")
	api.GET("/roles", a.listRoles)
	api.POST("/demo", a.startDemo)

	sessions := api.Group("/sessions")
	sessions.GET("", a.listSessions)
	sessions.GET("/:id", a.withSession(a.getSession))
	sessions.POST("/:id/speakers", a.withSession(a.addSpeaker))
	sessions.PUT("/:id/speakers/:speaker/role", a.withSession(a.assignRole))
	sessions.POST("/:id/next", a.withSession(a.next))
	sessions.POST("/:id/switch/:speaker", a.withSession(a.switchTo))
	sessions.POST("/:id/jump/:index", a.withSession(a.jump))
	sessions.POST("/:id/shortcut", a.withSession(a.shortcut))
	sessions.POST("/:id/clear", a.withSession(a.clear))
	sessions.POST("/:id/stop", a.withSession(a.stop))
}

// Start serves until Shutdown.
func (a *API) Start() error {
	a.log.Info().Str("addr", a.server.Addr).Msg("HTTP API listening")
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := a.log.Debug()
		switch {
		case status >= 500:
			ev = a.log.Error()
		case status >= 400:
			ev = a.log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

func respondError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func respondResult(c *gin.Context, s *session.Session, ok bool, failure error, failStatus int) {
	if !ok {
		respondError(c, failStatus, failure)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: s.Snapshot()})
}

func (a *API) withSession(h func(*gin.Context, *session.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := a.manager.Get(c.Param("id"))
		if err != nil {
			respondError(c, http.StatusNotFound, err)
			return
		}
		h(c, s)
	}
}

var (
	errSpeakerNotFound = errors.New("speaker not found")
	errNoSpeakers      = errors.New("no speakers registered")
	errShortcutIgnored = errors.New("shortcuts are only active in manual mode while recording")
)

func (a *API) listRoles(c *gin.Context) {
	c.JSON(http.StatusOK, DataResponse{Data: a.roles})
}

func (a *API) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, DataResponse{Data: a.manager.List()})
}

func (a *API) getSession(c *gin.Context, s *session.Session) {
	c.JSON(http.StatusOK, DataResponse{Data: s.Snapshot()})
}

func (a *API) addSpeaker(c *gin.Context, s *session.Session) {
	c.JSON(http.StatusCreated, DataResponse{Data: s.AddSpeaker()})
}

type roleRequest struct {
	Role string `json:"role" binding:"required,max=64"`
}

func (a *API) assignRole(c *gin.Context, s *session.Session) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	respondResult(c, s, s.AssignRole(c.Param("speaker"), req.Role), errSpeakerNotFound, http.StatusNotFound)
}

func (a *API) next(c *gin.Context, s *session.Session) {
	respondResult(c, s, s.Next(), errNoSpeakers, http.StatusConflict)
}

func (a *API) switchTo(c *gin.Context, s *session.Session) {
	respondResult(c, s, s.SwitchTo(c.Param("speaker")), errSpeakerNotFound, http.StatusNotFound)
}

func (a *API) jump(c *gin.Context, s *session.Session) {
	n, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid index %q", c.Param("index")))
		return
	}
	respondResult(c, s, s.JumpTo(n), errSpeakerNotFound, http.StatusNotFound)
}

type shortcutRequest struct {
	Key string `json:"key" binding:"required"`
}

func (a *API) shortcut(c *gin.Context, s *session.Session) {
	var req shortcutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	sc, ok := mode.ParseKey(req.Key)
	if !ok {
		respondError(c, http.StatusBadRequest, fmt.Errorf("unknown shortcut %q", req.Key))
		return
	}
	respondResult(c, s, s.Shortcut(sc), errShortcutIgnored, http.StatusConflict)
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

func (a *API) clear(c *gin.Context, s *session.Session) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.ClearTranscript(req.Confirm); err != nil {
		respondError(c, http.StatusPreconditionRequired, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: s.Snapshot()})
}

func (a *API) stop(c *gin.Context, s *session.Session) {
	err := a.manager.Finish(s)
	snap := s.Snapshot()
	if err != nil {
		a.log.Warn().Err(err).Str("session_id", s.ID()).Msg("Session stopped with error")
	}
	c.JSON(http.StatusOK, DataResponse{Data: snap})
}

type demoRequest struct {
	DelayMS int `json:"delay_ms" binding:"gte=0,lte=10000"`
}

// startDemo creates a replay-only session and feeds it the scripted
// consultation. Without a delay the replay completes before the response.
func (a *API) startDemo(c *gin.Context) {
	var req demoRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	s, err := a.manager.Create("", nil, "demo")
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := s.Start(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if req.DelayMS == 0 {
		if err := demo.Replay(c.Request.Context(), s, demo.Consultation, 0); err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusCreated, DataResponse{Data: s.Snapshot()})
		return
	}

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		if err := demo.Replay(ctx, s, demo.Consultation, time.Duration(req.DelayMS)*time.Millisecond); err != nil {
			a.log.Debug().Err(err).Str("session_id", s.ID()).Msg("Demo replay interrupted")
		}
	}()
	c.JSON(http.StatusAccepted, DataResponse{Data: gin.H{"id": s.ID()}})
}
