// Package server exposes scraped holdings over HTTP
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"fundholdings/config"
	"fundholdings/report"
	"fundholdings/scraper"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FundInfo describes a configured fund
type FundInfo struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Locator string `json:"locator"`
}

// Server serves holdings from a single shared scraper service.
// Requests are handled one at a time since the service drives one browser tab.
type Server struct {
	mu    sync.Mutex
	svc   *scraper.Service
	funds []config.FundSource
}

// New creates a server for the configured funds
func New(svc *scraper.Service, funds []config.FundSource) *Server {
	return &Server{svc: svc, funds: funds}
}

// Handler returns the routed handler wrapped with access logging and panic recovery
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/funds", s.listFunds).Methods("GET")
	router.HandleFunc("/funds/{fund}/holdings", s.fundHoldings).Methods("GET")
	router.HandleFunc("/report", s.downloadReport).Methods("GET")

	logWriter := logrus.StandardLogger().Writer()
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(logWriter, router),
	)
}

func (s *Server) listFunds(w http.ResponseWriter, r *http.Request) {
	infos := make([]FundInfo, 0, len(s.funds))
	for i, fund := range s.funds {
		infos = append(infos, FundInfo{
			Index:   i,
			Name:    fund.DisplayName(),
			URL:     fund.URL,
			Locator: scraper.LocatorFor(fund).String(),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// lookup accepts either the fund index or its display name
func (s *Server) lookup(key string) (config.FundSource, bool) {
	if i, err := strconv.Atoi(key); err == nil {
		if i < 0 || i >= len(s.funds) {
			return config.FundSource{}, false
		}
		return s.funds[i], true
	}
	i := slices.IndexFunc(s.funds, func(f config.FundSource) bool {
		return strings.EqualFold(f.DisplayName(), key)
	})
	if i < 0 {
		return config.FundSource{}, false
	}
	return s.funds[i], true
}

func (s *Server) fundHoldings(w http.ResponseWriter, r *http.Request) {
	fund, ok := s.lookup(mux.Vars(r)["fund"])
	if !ok {
		http.Error(w, "Unknown fund", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.svc.Establish(r.Context()); err != nil {
		http.Error(w, "Error opening fund site: "+err.Error(), http.StatusBadGateway)
		return
	}

	table, err := s.svc.ScrapeFund(r.Context(), fund)
	if errors.Is(err, scraper.ErrTableNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Error scraping fund: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, table)
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.svc.Run(r.Context(), s.funds)
	if err != nil {
		http.Error(w, "Error scraping funds: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="funds.xlsx"`)
	if err := report.WriteTo(w, report.Entries(result.Tables)); err != nil {
		logrus.WithError(err).Error("failed to stream report")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}
