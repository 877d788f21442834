// Package http exposes the read-only operator API plus the manual close
// endpoint. Everything mutating goes through the engine's pair locks; the
// server itself holds no trading state.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"helmsman/internal/engine"
	"helmsman/internal/logger"
	"helmsman/internal/store"
)

type Server struct {
	runners map[string]*engine.Runner
	ledger  *engine.Ledger
	rec     store.Recorder
	started time.Time

	engineSrv *http.Server
}

func NewServer(addr string, runners map[string]*engine.Runner, ledger *engine.Ledger, rec store.Recorder) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		runners: runners,
		ledger:  ledger,
		rec:     rec,
		started: time.Now().UTC(),
	}

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/positions", s.handlePositions)
	api.GET("/trades", s.handleTrades)
	api.GET("/decisions", s.handleDecisions)
	api.GET("/balances", s.handleBalances)
	api.POST("/models/:model/pairs/:symbol/close", s.handleForceClose)

	s.engineSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Run() error {
	logger.Infof("http: listening on %s", s.engineSrv.Addr)
	err := s.engineSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.engineSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	models := make([]string, 0, len(s.runners))
	for id := range s.runners {
		models = append(models, id)
	}
	c.JSON(http.StatusOK, gin.H{
		"uptime": time.Since(s.started).Truncate(time.Second).String(),
		"models": models,
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	type positionView struct {
		ModelID    string `json:"model_id"`
		Symbol     string `json:"symbol"`
		Side       string `json:"side"`
		Size       string `json:"size"`
		EntryPrice string `json:"entry_price"`
		Leverage   int    `json:"leverage"`
		OpenedAt   string `json:"opened_at"`
	}
	positions := s.ledger.Snapshot()
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionView{
			ModelID:    p.ModelID,
			Symbol:     p.Symbol,
			Side:       string(p.Side),
			Size:       p.Size.String(),
			EntryPrice: p.EntryPrice.String(),
			Leverage:   p.Leverage,
			OpenedAt:   p.OpenedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) handleTrades(c *gin.Context) {
	recs, err := s.rec.ListTrades(c.Request.Context(), c.Query("model"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": recs})
}

func (s *Server) handleDecisions(c *gin.Context) {
	recs, err := s.rec.ListDecisions(c.Request.Context(), c.Query("model"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs})
}

func (s *Server) handleBalances(c *gin.Context) {
	recs, err := s.rec.ListBalances(c.Request.Context(), c.Query("model"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": recs})
}

func (s *Server) handleForceClose(c *gin.Context) {
	modelID := c.Param("model")
	symbol := c.Param("symbol")
	runner, ok := s.runners[modelID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown model " + modelID})
		return
	}
	reason := c.DefaultQuery("reason", "operator request")

	res, err := runner.ForceClose(c.Request.Context(), symbol, reason)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "decision": res.Decision})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decision": res.Decision,
		"reason":   res.Reason,
		"events":   len(res.Events),
	})
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || n <= 0 {
		return 50
	}
	return n
}
