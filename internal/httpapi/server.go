package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/content"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/globaltime"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/observability"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/search"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	JWTSecret      string
	JWTIssuer      string
	AllowedOrigins []string
}

// Services are the collaborators behind the handlers. Badges and Metrics
// may be nil.
type Services struct {
	Content *content.Service
	Search  *search.Service
	Badges  visibility.BadgeLookup
	Metrics *observability.Metrics
}

type Server struct {
	pool    *db.Pool
	content *content.Service
	search  *search.Service
	badges  visibility.BadgeLookup
	metrics *observability.Metrics
	logger  zerolog.Logger
	opts    Options
}

func NewServer(pool *db.Pool, services Services, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		pool:    pool,
		content: services.Content,
		search:  services.Search,
		badges:  services.Badges,
		metrics: services.Metrics,
		logger:  logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			JWTSecret:       strings.TrimSpace(opts.JWTSecret),
			JWTIssuer:       strings.TrimSpace(opts.JWTIssuer),
			AllowedOrigins:  origins,
		},
	}
}

// Handler builds the echo instance with middleware and routes. Start
// serves it; tests drive it directly.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", echo.HeaderAuthorization},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := e.Group("/api/v1", s.resolveViewer())
	api.GET("/health", s.handleHealth)
	api.GET("/content/search", s.handleSearch)
	api.GET("/content/duplicates", s.handleDuplicates, requireViewer)
	api.POST("/content/merge", s.handleMerge, requireViewer)
	api.GET("/content/merge/:merge_id", s.handleMergeHistory, requireViewer)
	api.POST("/content/merge/:merge_id/undo", s.handleUnmerge, requireViewer)
	api.POST("/content", s.handleCreate, requireViewer)
	api.GET("/content/:id", s.handleGet)
	api.PATCH("/content/:id", s.handleUpdate, requireViewer)
	api.DELETE("/content/:id", s.handleDelete, requireViewer)
	api.GET("/content/:id/merges", s.handleContentMerges, requireViewer)
	api.POST("/content/:id/claim", s.handleClaim, requireViewer)
	api.POST("/content/:id/restore", s.handleRestore, requireViewer)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil || s.content == nil || s.search == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("contenthub api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("contenthub api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	database := "ok"
	if s.pool == nil {
		database = "unconfigured"
	} else if err := s.pool.DB().PingContext(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check database ping failed")
		return c.JSON(http.StatusServiceUnavailable, jsendResponse{
			Status:  "error",
			Message: "Database unavailable",
			Code:    http.StatusServiceUnavailable,
		})
	}
	return success(c, map[string]any{
		"service":  "contenthub",
		"database": database,
		"time":     globaltime.UTC(),
	})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}

func parseBoolParam(raw string) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(trimmed)
	if err != nil {
		return false, fmt.Errorf("must be true or false")
	}
	return value, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
