package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"giveaway-bot/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Lister is the read side of the giveaway manager.
type Lister interface {
	Active(guildID string) []storage.Giveaway
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Server struct {
	giveaways Lister
	checks    map[string]Check
	logger    *zap.Logger
	http      *http.Server
}

type giveawayView struct {
	MessageID    string    `json:"message_id"`
	ChannelID    string    `json:"channel_id"`
	GuildID      string    `json:"guild_id"`
	Prize        string    `json:"prize"`
	Winners      int       `json:"winners"`
	EndsAt       time.Time `json:"ends_at"`
	Participants int       `json:"participants"`
}

func New(addr string, giveaways Lister, checks map[string]Check, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{giveaways: giveaways, checks: checks, logger: logger}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	router.GET("/ready", s.ready)
	router.GET("/giveaways", s.listGiveaways)
	return router
}

func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   name + " unavailable",
				"details": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) listGiveaways(c *gin.Context) {
	active := s.giveaways.Active(c.Query("guild_id"))
	views := make([]giveawayView, 0, len(active))
	for _, g := range active {
		views = append(views, giveawayView{
			MessageID:    g.MessageID,
			ChannelID:    g.ChannelID,
			GuildID:      g.GuildID,
			Prize:        g.Prize,
			Winners:      g.WinnerCount,
			EndsAt:       g.EndsAt.UTC(),
			Participants: len(g.Entered),
		})
	}
	c.JSON(http.StatusOK, gin.H{"giveaways": views})
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
