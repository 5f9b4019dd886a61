package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaydeck/relaydeck/pkg/config"
	"github.com/relaydeck/relaydeck/pkg/event"
	"github.com/relaydeck/relaydeck/pkg/handler"
	"github.com/relaydeck/relaydeck/pkg/service"
	"github.com/relaydeck/relaydeck/pkg/utils"
)

type Server struct {
	ginEngine   *gin.Engine
	logger      *slog.Logger
	cfg         *config.AppConfig
	chatService *service.ChatService
	listener    net.Listener
	port        int
}

func NewServer(cfg *config.AppConfig, chatService *service.ChatService) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow common localhost dev origins.
	// Note: if you don't need cookies/credentials, keep Allow-Credentials off.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				// Reject unknown origins.
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine:   ginEngine,
		logger:      utils.GetLogger(),
		cfg:         cfg,
		chatService: chatService,
	}

	server.SetupRoutes()

	return server
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	// Record the actual port (useful if we ever switch to :0).
	s.listener = ln
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.logger.Info("server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Non-blocking: if startup fails immediately return error; otherwise return nil to let main continue
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
		// Serve can still fail after startup (listener torn down underneath
		// us); drain and log so the failure isn't silent.
		go func() {
			if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("server terminated", "error", err)
			}
		}()
	}
	return nil
}

func (s *Server) SetupRoutes() {
	chatHandler := handler.NewChatHandler(s.chatService)
	wsHandler := event.NewWSHandler()

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	apiGroup.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Chat turn (streaming and sync)
	// /api/chat
	apiGroup.POST("/chat", chatHandler.Chat)

	// Conversation management API routes
	// /api/conversations
	convGroup := apiGroup.Group("/conversations")
	convGroup.POST("", chatHandler.CreateConversation)
	convGroup.GET("", chatHandler.ListConversations)
	convGroup.GET(":id", chatHandler.GetConversation)
	convGroup.PATCH(":id", chatHandler.UpdateConversation)
	convGroup.DELETE(":id", chatHandler.DeleteConversation)
	convGroup.GET(":id/messages", chatHandler.ListMessages)
	convGroup.GET(":id/run", chatHandler.RunStatus)
	convGroup.POST(":id/cancel", chatHandler.CancelRun)

	// Run lifecycle notifications over WebSocket
	// /api/events/ws
	apiGroup.GET("/events/ws", wsHandler.Handle)
}
