package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"featurestream/internal/config"
	"featurestream/internal/drops"
	"featurestream/internal/model"
)

// Engine is the read/control surface the API needs from the streaming core.
type Engine interface {
	Features(customerID string) (model.FeatureSnapshot, bool)
	ExportState() map[string]model.CustomerExport
	Watermark() (time.Time, bool)
	SeenEvents() int
	CustomerCount() int
	Reset()
}

type Server struct {
	cfg     *config.Manager
	engine  Engine
	drops   *drops.Store
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Watermark  *string      `json:"watermark"`
	Customers  int          `json:"customers"`
	SeenEvents int          `json:"seen_events"`
	Window     windowStatus `json:"window"`
	Ingest     ingestStatus `json:"ingest"`
}

type windowStatus struct {
	Days      int    `json:"days"`
	GraceDays int    `json:"grace_days"`
	Batch     string `json:"batch"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	TCPStream bool `json:"tcp_stream"`
	Replay    bool `json:"replay"`
	Kafka     bool `json:"kafka"`
}

func Start(ctx context.Context, cfg *config.Manager, engine Engine, dropStore *drops.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		engine:  engine,
		drops:   dropStore,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/features", server.handleFeatures)
	mux.HandleFunc("/features/", server.handleFeatures)
	mux.HandleFunc("/export", server.handleExport)
	mux.HandleFunc("/drops", server.handleDrops)
	mux.HandleFunc("/admin/reset", server.handleReset)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	var wm *string
	if ts, ok := s.engine.Watermark(); ok {
		v := ts.UTC().Format(time.RFC3339Nano)
		wm = &v
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Watermark:  wm,
		Customers:  s.engine.CustomerCount(),
		SeenEvents: s.engine.SeenEvents(),
		Window: windowStatus{
			Days:      cfg.Window.Days,
			GraceDays: cfg.Window.GraceDays,
			Batch:     cfg.Window.Batch,
		},
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Replay:    cfg.Ingest.Replay.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	customerID := strings.TrimPrefix(r.URL.Path, "/features")
	customerID = strings.TrimPrefix(customerID, "/")
	if customerID != "" {
		snap, ok := s.engine.Features(customerID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"customer_id": customerID,
			"features":    snap,
		})
		return
	}
	state := s.engine.ExportState()
	features := make(map[string]model.FeatureSnapshot, len(state))
	for id, export := range state {
		features[id] = export.Features
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"features": features,
		"count":    len(features),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	state := s.engine.ExportState()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": state,
		"count": len(state),
	})
}

func (s *Server) handleDrops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []drops.Record
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.drops.Since(ts)
	} else {
		list = s.drops.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drops": list,
		"count": len(list),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.engine.Reset()
	if s.drops != nil {
		s.drops.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
