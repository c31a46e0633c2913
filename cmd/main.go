package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexochat/backend/internal/api/handler"
	"nexochat/backend/internal/blocking"
	"nexochat/backend/internal/chathub"
	"nexochat/backend/internal/config"
	"nexochat/backend/internal/conversation"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/localization"
	"nexochat/backend/internal/message"
	"nexochat/backend/internal/notification"
	"nexochat/backend/internal/realtime"
	"nexochat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

func newBroker(cfg *config.Config, s *storage.Service) realtime.Broker {
	if cfg.Broker == "redis" {
		return realtime.NewRedisBroker(s.Redis)
	}
	jww.WARN.Println("Using the in-process broker; live streams are not shared between nodes")
	return realtime.NewMemoryBroker()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		jww.FATAL.Fatalf("Failed to load config: %v", err)
	}
	jww.SetStdoutThreshold(cfg.Threshold())
	jww.INFO.Println("Starting nexochat backend...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage and broker
	s, err := storage.Connect(ctx, cfg)
	if err != nil {
		jww.FATAL.Fatalf("Failed to connect storage: %v", err)
	}
	defer s.Close()
	broker := newBroker(cfg, s)
	defer broker.Close()

	// 2. Services
	loc := localization.Default()
	dir := directory.NewService(s.DB)
	blocks := blocking.NewRegistry(s.DB, dir)
	conversations := conversation.NewStore(s.DB, dir, blocks, broker, loc, cfg.Locale)
	channel := message.NewChannel(s.DB, conversations, blocks, dir, broker)
	fanout := notification.NewFanout(s.DB, dir, broker, loc, cfg.Locale)
	channel.OnInsert(fanout.OnMessageInserted)

	// 3. Stream hub
	hub := chathub.NewHub()
	go hub.Run()

	// 4. HTTP
	if cfg.Threshold() > jww.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(handler.Services{
		Directory:     dir,
		Blocks:        blocks,
		Conversations: conversations,
		Messages:      channel,
		Notifications: fanout,
		Broker:        broker,
	}, hub, handler.NewAuthenticator(cfg.JWT))

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		jww.INFO.Printf("Listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			jww.FATAL.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	jww.INFO.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		jww.ERROR.Printf("HTTP shutdown: %v", err)
	}
}
