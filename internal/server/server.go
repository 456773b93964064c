package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/engine"
	"github.com/jsgian/go-wishes/internal/outcome"
	"github.com/jsgian/go-wishes/internal/roster"
)

// cacheItem stores the rendered calendar and its metadata for HTTP caching.
type cacheItem struct {
	data         []byte
	etag         string
	lastModified string // RFC1123 format required by HTTP headers
}

// FeedServer exposes the occasions calendar and the Outcome Log over HTTP.
type FeedServer struct {
	// cache uses atomic.Pointer for lock-free reads; it is only replaced after a roster reload.
	cache atomic.Pointer[cacheItem]
	Port  string

	// Store backs /outcomes. When nil the route answers 503.
	Store outcome.Store
	// Clock and Location pick the default day of /outcomes.
	Clock    engine.Clock
	Location *time.Location
}

// NewFeedServer creates a new instance of the server.
func NewFeedServer(port string, store outcome.Store) *FeedServer {
	return &FeedServer{
		Port:     port,
		Store:    store,
		Clock:    engine.RealClock{},
		Location: time.Local,
	}
}

// Routes builds the router. GET routes also answer HEAD.
func (s *FeedServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(accessLog)

	r.Get(config.RouteCalendar, s.handleCalendarRequest)
	r.Get(config.RouteOutcomes, s.handleOutcomes)
	r.Get(config.RouteHealth, handleHealth)
	return r
}

// Start initializes the HTTP server and blocks until the context is cancelled.
func (s *FeedServer) Start(ctx context.Context) error {
	if s.Port == "" {
		return errors.New(config.ErrPortRequired)
	}

	srv := &http.Server{
		Addr:         config.LocalhostBindAddr + config.AddrSeparator + s.Port,
		Handler:      s.Routes(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyPort, s.Port,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// Update atomically replaces the served calendar.
func (s *FeedServer) Update(data []byte) {
	hash := sha256.Sum256(data)
	etag := fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:]))

	item := &cacheItem{
		data:         data,
		etag:         etag,
		lastModified: time.Now().UTC().Format(http.TimeFormat),
	}
	s.cache.Store(item)

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, etag,
	)
}

// handleCalendarRequest serves the ICS content with HTTP caching support.
func (s *FeedServer) handleCalendarRequest(w http.ResponseWriter, r *http.Request) {
	item := s.cache.Load()
	if item == nil {
		w.Header().Set(config.HeaderRetryAfter, config.RetryAfterSeconds)
		http.Error(w, config.HTTPMsgInitializing, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set(config.HeaderContentType, config.MimeTextCalendar)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	w.Header().Set(config.HeaderETag, item.etag)
	w.Header().Set(config.HeaderLastModified, item.lastModified)

	if match := r.Header.Get(config.HeaderIfNoneMatch); match == item.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if since := r.Header.Get(config.HeaderIfModifiedSince); since != "" {
		if clientTime, err := time.Parse(http.TimeFormat, since); err == nil {
			if serverTime, err := time.Parse(http.TimeFormat, item.lastModified); err == nil {
				if !serverTime.After(clientTime) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}
	}

	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
			logWriteError(err)
		}
	}
}

// outcomesResponse is the JSON body of /outcomes.
type outcomesResponse struct {
	Date     string                 `json:"date"`
	Counts   map[outcome.Status]int `json:"counts"`
	Outcomes []outcome.Outcome      `json:"outcomes"`
}

// handleOutcomes lists the Outcome Log of one day (?date=YYYY-MM-DD, default today).
func (s *FeedServer) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		w.Header().Set(config.HeaderRetryAfter, config.RetryAfterSeconds)
		http.Error(w, config.HTTPMsgInitializing, http.StatusServiceUnavailable)
		return
	}

	date := r.URL.Query().Get(config.QueryDate)
	if date == "" {
		date = roster.DateOf(s.now()).String()
	} else if d, ok := roster.ParseDate(date); ok {
		date = d.String()
	} else {
		http.Error(w, config.HTTPMsgBadDate, http.StatusBadRequest)
		return
	}

	list, err := s.Store.List(r.Context(), date)
	if err != nil {
		slog.Error(config.ErrOutcomeQuery,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyDate, date,
			config.LogKeyError, err,
		)
		http.Error(w, config.HTTPMsgInternalErr, http.StatusInternalServerError)
		return
	}

	resp := outcomesResponse{
		Date:     date,
		Counts:   make(map[outcome.Status]int, len(outcome.Statuses)),
		Outcomes: list,
	}
	if resp.Outcomes == nil {
		resp.Outcomes = []outcome.Outcome{}
	}
	for _, o := range list {
		resp.Counts[o.Status]++
	}

	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logWriteError(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(config.HeaderContentType, config.MimeTextPlain)
	_, _ = io.WriteString(w, config.HTTPMsgOK)
}

func (s *FeedServer) now() time.Time {
	clock := s.Clock
	if clock == nil {
		clock = engine.RealClock{}
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return clock.Now().In(loc)
}

// accessLog records each request at debug level.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug(config.MsgHTTPRequest,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyMethod, r.Method,
			config.LogKeyPath, r.URL.Path,
			config.LogKeyStatus, ww.Status(),
			config.LogKeySizeBytes, ww.BytesWritten(),
			config.LogKeyDuration, time.Since(start).Milliseconds(),
		)
	})
}

func logWriteError(err error) {
	slog.Error(config.ErrWriteResp,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyError, err,
	)
}
