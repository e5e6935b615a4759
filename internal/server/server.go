package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fableworks/continuity/internal/config"
	"github.com/fableworks/continuity/internal/core/cache"
	"github.com/fableworks/continuity/internal/core/checker"
	"github.com/fableworks/continuity/internal/core/runner"
	"github.com/fableworks/continuity/internal/core/storypath"
	"github.com/fableworks/continuity/internal/gateway"
	"github.com/fableworks/continuity/internal/llm"
	"github.com/fableworks/continuity/internal/status"
)

type Server struct {
	Gateway  *gateway.Gateway
	Registry *status.Registry
	secret   []byte
}

func NewServer() *Server {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Env vars override the file (simple override logic)
	if envProvider := os.Getenv("LLM_PROVIDER"); envProvider != "" {
		cfg.LLM.Provider = envProvider
	}
	if envModel := os.Getenv("LLM_MODEL"); envModel != "" {
		cfg.LLM.Model = envModel
	}
	if envAPIKey := os.Getenv("LLM_API_KEY"); envAPIKey != "" {
		cfg.LLM.APIKey = envAPIKey
	}
	if envBaseURL := os.Getenv("LLM_BASE_URL"); envBaseURL != "" {
		cfg.LLM.BaseURL = envBaseURL
	}
	if envSecret := os.Getenv("WEBHOOK_SECRET"); envSecret != "" {
		cfg.Webhook.Secret = envSecret
	}

	if cfg.Webhook.Secret == "" {
		log.Fatalf("No webhook secret configured; refusing to accept unauthenticated events")
	}
	if cfg.Content.Dir == "" {
		cfg.Content.Dir = "content/renders"
	}
	if cfg.Cache.File == "" {
		cfg.Cache.File = "content/validation-cache.json"
	}

	llmClient, err := llm.NewClient(context.Background(), cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	store := cache.Open(cfg.Cache.File)
	registry := status.NewRegistry()
	chk := checker.New(llmClient, cfg.Checker.Prompt, time.Duration(cfg.Checker.TimeoutSeconds)*time.Second, cfg.Checker.Retries)
	rn := runner.New(storypath.NewDirSource(cfg.Content.Dir), store, chk, registry, cfg.Concurrency.MaxRuns)
	gw := gateway.New(rn, store,
		gateway.NewStaticCollaborators(cfg.Webhook.Collaborators),
		nil,
		time.Duration(cfg.Webhook.DedupWindowMinutes)*time.Minute)

	return &Server{
		Gateway:  gw,
		Registry: registry,
		secret:   []byte(cfg.Webhook.Secret),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/webhook", s.Webhook)
	r.GET("/status", s.Status)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// Webhook authenticates the raw payload before anything parses it, then
// hands the event to the gateway. The response is the immediate ack; run
// aggregates are posted later through the gateway's notifier.
func (s *Server) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := gateway.VerifySignature(s.secret, body, c.GetHeader(gateway.SignatureHeader)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Bad signature"})
		return
	}

	var ev gateway.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if ev.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing target"})
		return
	}

	ack, err := s.Gateway.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		log.Printf("Failed to handle event %s: %v", ev.ID, err)
		switch {
		case errors.Is(err, gateway.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, runner.ErrRunActive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, cache.ErrCorrupt):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	code := http.StatusOK
	if ack.Started {
		code = http.StatusAccepted
	}
	c.JSON(code, gin.H{"message": ack.Message})
}

func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jobs":     s.Registry.Jobs(),
		"counters": s.Registry.Counters(),
	})
}
