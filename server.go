package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"i4.energy/across/osmocon/gsm"
	"i4.energy/across/osmocon/store"
)

// Restarter restarts a hosted program.
type Restarter interface {
	Restart()
}

// Server exposes the boot status and the collected measurements over HTTP
type Server struct {
	Logger *slog.Logger
	Store  *store.Store
	// CellLog is nil when the daemon does not host cell_log
	CellLog Restarter
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /console", s.handleConsole)
	mux.HandleFunc("GET /spectrum/{band}", s.handleSpectrum)
	mux.HandleFunc("GET /cells", s.handleCells)
	mux.HandleFunc("POST /cell-log/restart", s.handleCellLogRestart)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Store.Status())
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	type ConsoleResponse struct {
		Lines []string `json:"lines"`
	}
	lines := s.Store.Console()
	if lines == nil {
		lines = []string{}
	}
	s.sendJSON(w, ConsoleResponse{Lines: lines})
}

// handleSpectrum returns the latest reading of every channel in a band
func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	band, err := gsm.ParseBand(r.PathValue("band"))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusNotFound)
		return
	}

	sg, ok := s.Store.Spectrum(band)
	if !ok {
		s.sendError(w, "no spectrum for band", http.StatusNotFound)
		return
	}
	s.sendJSON(w, sg)
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Store.Cells())
}

func (s *Server) handleCellLogRestart(w http.ResponseWriter, r *http.Request) {
	if s.CellLog == nil {
		s.sendError(w, "cell_log is not running", http.StatusServiceUnavailable)
		return
	}

	s.CellLog.Restart()
	s.Logger.Info("cell_log restart requested")
	w.WriteHeader(http.StatusAccepted)
}
