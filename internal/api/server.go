package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/storyrank/internal/engine"
	"github.com/knowledge-engine/storyrank/internal/search"
)

type Server struct {
	Engine *engine.Engine
	Logger *logrus.Entry
	Echo   *echo.Echo
}

func NewServer(eng *engine.Engine, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.WithField("component", "api")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Engine: eng,
		Logger: logger,
		Echo:   e,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.requestLogger)
	e.Use(s.requestTimeout)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/healthz", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(s.Engine.Metrics.Handler()))

	v1 := s.Echo.Group("/api/v1")
	v1.POST("/rank", s.handleRank)
	v1.GET("/keywords", s.handleKeywords)
	v1.GET("/status", s.handleStatus)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	cfg := s.Engine.Config.Server
	s.Echo.Server.ReadTimeout = cfg.ReadTimeout
	s.Echo.Server.WriteTimeout = cfg.WriteTimeout

	s.Logger.Infof("Starting API Server on %s", addr)
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Echo.ServeHTTP(w, r)
}

// Requests and responses

type ErrorResponse struct {
	Error string `json:"error"`
}

type RankRequest struct {
	Query string `json:"query"`
	// Bio is accepted as an alias of Query.
	Bio          string `json:"bio"`
	Sort         string `json:"sort"`
	MinRelevance int    `json:"minRelevance"`
}

type RankResponse struct {
	Stories        []StoryView `json:"stories"`
	Keywords       []string    `json:"keywords"`
	CacheHit       bool        `json:"cacheHit"`
	Stale          bool        `json:"stale"`
	Source         string      `json:"source"`
	ProcessingTime int64       `json:"processingTime"`
}

type StoryView struct {
	ID               int64    `json:"id"`
	Title            string   `json:"title"`
	URL              string   `json:"url,omitempty"`
	By               string   `json:"by"`
	Time             int64    `json:"time"`
	Score            int      `json:"score"`
	Descendants      int      `json:"descendants"`
	Type             string   `json:"type"`
	RelevanceScore   float64  `json:"relevanceScore"`
	Relevance        int      `json:"relevance"`
	Excerpt          string   `json:"excerpt,omitempty"`
	MatchingKeywords []string `json:"matchingKeywords"`
}

type KeywordsResponse struct {
	Keywords []string `json:"keywords"`
}

type StatusResponse struct {
	engine.Status
	Uptime string `json:"uptime"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// Handlers

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleRank(c echo.Context) error {
	var req RankRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON")
	}

	query := req.Query
	if query == "" {
		query = req.Bio
	}
	sortKey, err := search.ParseSortKey(req.Sort)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MinRelevance < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "minRelevance must not be negative")
	}

	resp, err := s.Engine.RankStories(c.Request().Context(), engine.RankRequest{
		Query:        query,
		Sort:         sortKey,
		MinRelevance: req.MinRelevance,
	})
	if err != nil {
		return err
	}

	excerptLength := s.Engine.Config.Ranking.ExcerptLength
	views := make([]StoryView, len(resp.Stories))
	for i, story := range resp.Stories {
		views[i] = StoryView{
			ID:               story.ID,
			Title:            story.Title,
			URL:              story.URL,
			By:               story.By,
			Time:             story.Time,
			Score:            story.Score,
			Descendants:      story.Descendants,
			Type:             story.Type,
			RelevanceScore:   story.RelevanceScore,
			Relevance:        search.RelevancePercent(story.RelevanceScore),
			Excerpt:          story.Excerpt(excerptLength),
			MatchingKeywords: story.MatchingKeywords,
		}
	}

	return c.JSON(http.StatusOK, RankResponse{
		Stories:        views,
		Keywords:       resp.Keywords,
		CacheHit:       resp.CacheHit,
		Stale:          resp.Stale,
		Source:         resp.Source,
		ProcessingTime: resp.ProcessingTime.Milliseconds(),
	})
}

func (s *Server) handleKeywords(c echo.Context) error {
	return c.JSON(http.StatusOK, KeywordsResponse{
		Keywords: s.Engine.Keywords(c.QueryParam("q")),
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	status := s.Engine.Status()
	return c.JSON(http.StatusOK, StatusResponse{
		Status: status,
		Uptime: time.Since(status.Engine.StartTime).Round(time.Second).String(),
	})
}

// Middleware

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// resolve the status before logging it
			c.Error(err)
		}

		req := c.Request()
		entry := s.Logger.WithFields(logrus.Fields{
			"method":     req.Method,
			"path":       c.Path(),
			"status":     c.Response().Status,
			"latency":    time.Since(start),
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		})
		if err != nil {
			entry.WithError(err).Warn("Request failed")
		} else {
			entry.Info("Request served")
		}
		return nil
	}
}

func (s *Server) requestTimeout(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		timeout := s.Engine.Config.Server.RequestTimeout
		if timeout <= 0 {
			return next(c)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		msg = fmt.Sprint(he.Message)
	case errors.Is(err, engine.ErrEmptyQuery):
		code = http.StatusBadRequest
		msg = engine.ErrEmptyQuery.Error()
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
		msg = "upstream timed out"
	case errors.Is(err, engine.ErrUpstream):
		code = http.StatusBadGateway
		msg = err.Error()
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if writeErr := c.JSON(code, ErrorResponse{Error: msg}); writeErr != nil {
		s.Logger.WithError(writeErr).Error("Failed to write error response")
	}
}
