// Package httpapi exposes the report job over HTTP for scheduled
// invocation, plus a health surface that reports configuration presence
// without revealing secrets.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/autotech-nz/paymark-reporter/internal/config"
	"github.com/autotech-nz/paymark-reporter/internal/job"
	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// Server serves the invocation and health endpoints.
type Server struct {
	runner *job.Runner
	cfg    *config.Config
	log    zerolog.Logger
	router *gin.Engine
}

// NewServer wires the routes.
func NewServer(runner *job.Runner, cfg *config.Config, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{runner: runner, cfg: cfg, log: log, router: router}

	router.GET("/health", s.handleHealth)
	router.GET("/api/report", s.handleReport)
	router.POST("/api/report", s.handleReport)

	return s
}

// Router exposes the underlying engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("listening")
	return s.router.Run(addr)
}

func (s *Server) handleReport(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Outcome{OK: false, Error: err.Error()})
		return
	}

	out := s.runner.Run(c.Request.Context(), opts)
	status := http.StatusOK
	if !out.OK {
		status = http.StatusInternalServerError
	}
	c.JSON(status, out)
}

func (s *Server) handleHealth(c *gin.Context) {
	now := time.Now()
	win, err := model.DayWindow(now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"envHints": s.cfg.Presence(),
		"nzDate":   model.Local(now).Format(time.RFC3339),
		"nzWindowUTC": gin.H{
			"from": win.From.Format(time.RFC3339),
			"to":   win.To.Format(time.RFC3339),
		},
	})
}

func parseOptions(c *gin.Context) (job.Options, error) {
	opts := job.Options{
		Debug:  c.Query("debug") == "1" || c.Query("debug") == "true",
		Token:  c.Query("token"),
		Accept: c.Query("accept"),
	}

	var err error
	if opts.Page, err = intQuery(c, "page"); err != nil {
		return opts, err
	}
	if opts.Limit, err = intQuery(c, "limit"); err != nil {
		return opts, err
	}

	if v := c.Query("from"); v != "" {
		if opts.From, err = time.Parse(time.RFC3339, v); err != nil {
			return opts, err
		}
	}
	if v := c.Query("to"); v != "" {
		if opts.To, err = time.Parse(time.RFC3339, v); err != nil {
			return opts, err
		}
	}

	if v := c.Query("cardAcceptorIdCodes"); v != "" {
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				opts.Merchants = append(opts.Merchants, code)
			}
		}
	}
	return opts, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
