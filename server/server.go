package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/rmbg/config"
	"github.com/chaos-io/rmbg/matte"
	"github.com/chaos-io/rmbg/storage"
)

// Server 背景移除的 HTTP 接口，store 为空时不保存结果、历史接口返回 404
type Server struct {
	remover *matte.Remover
	store   *storage.Store
	cfg     config.ServerConfig
	out     config.OutputConfig
	logger  *slog.Logger
	engine  *gin.Engine
}

func New(remover *matte.Remover, store *storage.Store, cfg config.ServerConfig, out config.OutputConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		remover: remover,
		store:   store,
		cfg:     cfg,
		out:     out,
		logger:  logger,
	}

	engine := gin.New()
	engine.MaxMultipartMemory = int64(max(cfg.MaxUploadMB, 1)) << 20
	engine.Use(gin.Recovery(), s.logRequests(), s.limitBody())

	engine.GET("/healthz", s.health)
	api := engine.Group("/api")
	{
		api.POST("/remove-bg", s.removeBackground)
		api.POST("/crop", s.crop)
		api.POST("/smart-crop", s.smartCrop)
		api.POST("/change-background", s.changeBackground)
		api.GET("/history", s.history)
		api.GET("/images/:id", s.image)
	}
	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run 监听直到 ctx 取消，然后优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr, "input_size", s.remover.InputSize())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"elapsed", time.Since(start),
			"client", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "err", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			s.logger.Error("request", attrs...)
		case c.Writer.Status() >= http.StatusBadRequest:
			s.logger.Warn("request", attrs...)
		default:
			s.logger.Info("request", attrs...)
		}
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	limit := int64(max(s.cfg.MaxUploadMB, 1)) << 20
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
