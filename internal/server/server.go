// Package server is the HTTP surface: one-shot scrape and execute endpoints,
// the session routes backed by the persistent browser worker, label/record
// persistence for training data, and the speech endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/cache"
	"github.com/webvoice/access-assistant/internal/llm"
	"github.com/webvoice/access-assistant/internal/record"
	"github.com/webvoice/access-assistant/internal/scrape"
	"github.com/webvoice/access-assistant/internal/session"
	"github.com/webvoice/access-assistant/internal/speech"
)

// PageScraper performs a self-contained scrape of a URL.
type PageScraper interface {
	ScrapeURL(ctx context.Context, url string) (scrape.Snapshot, error)
}

// PageExecutor performs a self-contained action run against a URL.
type PageExecutor interface {
	ExecuteURL(ctx context.Context, url string, actions []action.Spec, query string) (action.Report, error)
}

// SessionAPI is the slice of the session manager the handlers use.
type SessionAPI interface {
	EnsurePage(ctx context.Context, url string) error
	ScrapeCurrent(ctx context.Context, scrollSteps int) (scrape.Snapshot, error)
	Execute(ctx context.Context, actions []action.Spec, query string, hooks action.Hooks) (action.Report, error)
	Close(ctx context.Context) error
	HasSession(ctx context.Context) bool
	CurrentURL(ctx context.Context) string
}

// ActionRecorder runs a manual recording session.
type ActionRecorder interface {
	Record(ctx context.Context, url string, stop record.StopFunc) ([]action.Spec, error)
}

type Server struct {
	logger    zerolog.Logger
	scraper   PageScraper
	executor  PageExecutor
	suggester llm.Suggester
	sessions  SessionAPI
	recorder  ActionRecorder
	stop      record.StopFunc
	cache     *cache.Store
	speaker   speech.Speaker
	manualDir string
	autoDir   string
}

type Options struct {
	Logger    zerolog.Logger
	Scraper   PageScraper
	Executor  PageExecutor
	Suggester llm.Suggester
	Sessions  SessionAPI
	Recorder  ActionRecorder
	Stop      record.StopFunc
	Cache     *cache.Store
	Speaker   speech.Speaker
	ManualDir string
	AutoDir   string
}

func New(opts Options) *Server {
	s := &Server{
		logger:    opts.Logger,
		scraper:   opts.Scraper,
		executor:  opts.Executor,
		suggester: opts.Suggester,
		sessions:  opts.Sessions,
		recorder:  opts.Recorder,
		stop:      opts.Stop,
		cache:     opts.Cache,
		speaker:   opts.Speaker,
		manualDir: opts.ManualDir,
		autoDir:   opts.AutoDir,
	}
	if s.speaker == nil {
		s.speaker = speech.Nop{}
	}
	if s.stop == nil {
		s.stop = record.ConsoleStop(os.Stdin, os.Stdout)
	}
	return s
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.POST("/scrape", s.handleScrape)
	r.POST("/process", s.handleProcess)
	r.POST("/execute", s.handleExecute)

	r.POST("/session/open", s.handleSessionOpen)
	r.POST("/session/execute", s.handleSessionExecute)
	r.POST("/session/close", s.handleSessionClose)
	r.GET("/session/status", s.handleSessionStatus)

	r.POST("/record", s.handleRecord)
	r.POST("/label", s.handleLabel)
	r.POST("/speak", s.handleSpeak)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// validateURL accepts http/https URLs with a host. Anything else is rejected
// before a browser is launched for it.
func validateURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("URL must have a host")
	}
	return nil
}

func (s *Server) handleScrape(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "website_data": nil})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "website_data": nil})
		return
	}

	snap, err := s.scraper.ScrapeURL(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "website_data": nil})
		return
	}
	s.cache.Put(req.URL, snap)

	c.JSON(http.StatusOK, gin.H{
		"website_data": snap,
		"cached":       false,
		"message":      "Page scraped and cached.",
	})
}

func (s *Server) handleProcess(c *gin.Context) {
	var req struct {
		URL      string `json:"url"`
		Query    string `json:"query"`
		UseCache bool   `json:"use_cache"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "website_data": nil, "llm_response": nil})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "website_data": nil, "llm_response": nil})
		return
	}

	var snap *scrape.Snapshot
	usedCache := false
	if req.UseCache {
		if hit := s.cache.Get(req.URL); hit != nil {
			snap = hit
			usedCache = true
		}
	}
	if snap == nil {
		fresh, err := s.scraper.ScrapeURL(c.Request.Context(), req.URL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "website_data": nil, "llm_response": nil})
			return
		}
		s.cache.Put(req.URL, fresh)
		snap = &fresh
	}

	// a failed suggestion still returns the scrape; the error travels inside
	// llm_response so the client can re-prompt without re-scraping
	var llmResp gin.H
	sug, err := s.suggester.Suggest(c.Request.Context(), *snap, req.Query)
	if err != nil {
		llmResp = gin.H{"error": err.Error(), "action_sequence": []action.Spec{}, "verbal_guide": ""}
	} else {
		llmResp = gin.H{"action_sequence": sug.ActionSequence, "verbal_guide": sug.VerbalGuide}
	}

	c.JSON(http.StatusOK, gin.H{
		"website_data": snap,
		"llm_response": llmResp,
		"used_cache":   usedCache,
	})
}

func (s *Server) handleExecute(c *gin.Context) {
	var req struct {
		URL     string        `json:"url"`
		Actions []action.Spec `json:"actions"`
		Query   string        `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, executeError(err))
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, executeError(err))
		return
	}
	actions, err := action.Normalize(req.Actions)
	if err != nil {
		c.JSON(http.StatusBadRequest, executeError(err))
		return
	}

	rep, err := s.executor.ExecuteURL(c.Request.Context(), req.URL, actions, req.Query)
	if err != nil {
		c.JSON(http.StatusOK, executeError(err))
		return
	}
	c.JSON(http.StatusOK, reportJSON(rep))
}

func executeError(err error) gin.H {
	return gin.H{"status": action.StatusError, "steps": []action.StepResult{}, "logs": err.Error(), "error": err.Error()}
}

func reportJSON(rep action.Report) gin.H {
	return gin.H{
		"status":    rep.Status,
		"steps":     rep.Steps,
		"logs":      strings.Join(rep.Logs, "\n"),
		"final_url": rep.FinalURL,
	}
}

func (s *Server) handleSessionOpen(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	if err := s.sessions.EnsurePage(c.Request.Context(), req.URL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": action.StatusSuccess,
		"url":    s.sessions.CurrentURL(c.Request.Context()),
	})
}

func (s *Server) handleSessionExecute(c *gin.Context) {
	var req struct {
		Actions []action.Spec `json:"actions"`
		Query   string        `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, executeError(err))
		return
	}
	actions, err := action.Normalize(req.Actions)
	if err != nil {
		c.JSON(http.StatusBadRequest, executeError(err))
		return
	}

	rep, err := s.sessions.Execute(c.Request.Context(), actions, req.Query, s.sessionHooks())
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			c.JSON(http.StatusConflict, executeError(err))
			return
		}
		c.JSON(http.StatusInternalServerError, executeError(err))
		return
	}
	c.JSON(http.StatusOK, reportJSON(rep))
}

// sessionHooks wires the scroll-skip heuristic and the post-action cache
// refresh into a session run. Both hooks run on the worker goroutine that
// owns the page, so they touch the page directly rather than going back
// through the manager.
func (s *Server) sessionHooks() action.Hooks {
	return action.Hooks{
		BeforeScroll: action.DataSufficient(s.logger),
		AfterEach: func(page playwright.Page, index int, step action.StepResult) {
			snap, err := scrape.FromPage(page, "", scrape.QuickScrollSteps)
			if err != nil {
				s.logger.Debug().Err(err).Int("step", index).Msg("post-action scrape failed")
				return
			}
			s.cache.Put(page.URL(), snap)
		},
	}
}

func (s *Server) handleSessionClose(c *gin.Context) {
	if err := s.sessions.Close(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": action.StatusSuccess})
}

func (s *Server) handleSessionStatus(c *gin.Context) {
	ctx := c.Request.Context()
	active := s.sessions.HasSession(ctx)
	resp := gin.H{"active": active}
	if active {
		resp["url"] = s.sessions.CurrentURL(ctx)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecord(c *gin.Context) {
	var req struct {
		URL               string          `json:"url"`
		Query             string          `json:"query"`
		OriginalScrape    json.RawMessage `json:"original_scrape"`
		LLMActionSequence []action.Spec   `json:"llm_action_sequence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	actions, err := s.recorder.Record(c.Request.Context(), req.URL, s.stop)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	scrapeData := req.OriginalScrape
	if scrapeData == nil {
		scrapeData = json.RawMessage(`{}`)
	}
	rec := gin.H{
		"url":             req.URL,
		"user_query":      req.Query,
		"original_scrape": scrapeData,
		"correct_actions": actions,
	}
	name := fmt.Sprintf("session_%s.json", fileStamp())
	if err := s.writeJSON(s.manualDir, name, rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          action.StatusSuccess,
		"file":            name,
		"correct_actions": actions,
	})
}

func (s *Server) handleLabel(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	stamp := fileStamp()
	name := fmt.Sprintf("label_%s.json", stamp)
	if err := s.writeJSON(s.autoDir, name, body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	// the bare query is kept alongside for quick review of label coverage
	query, _ := body["query"].(string)
	queriesDir := filepath.Join(s.autoDir, "queries")
	if err := os.MkdirAll(queriesDir, 0o755); err == nil {
		queryFile := filepath.Join(queriesDir, fmt.Sprintf("query_%s.txt", stamp))
		if err := os.WriteFile(queryFile, []byte(query), 0o644); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write query file")
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": action.StatusSuccess, "file": filepath.Join(s.autoDir, name)})
}

func (s *Server) handleSpeak(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	s.speaker.Speak(req.Text)
	c.JSON(http.StatusOK, gin.H{"status": action.StatusSuccess})
}

func (s *Server) writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// fileStamp names persisted files by wall clock plus a short unique suffix
// so two saves in the same second cannot collide.
func fileStamp() string {
	return time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
