package reader

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FocuswithJustin/versestream/core/errors"
	"github.com/FocuswithJustin/versestream/core/search"
	"github.com/FocuswithJustin/versestream/internal/logging"
)

// APIResponse is the envelope of every JSON endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError is the error part of a response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta carries response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// BookEntry is one book of a translation's table of contents.
type BookEntry struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Chapters int    `json:"chapters"`
}

// SearchResult is the payload of /search.
type SearchResult struct {
	Translation string       `json:"translation"`
	Query       string       `json:"query"`
	Hits        []search.Hit `json:"hits"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.hub.Count(),
	}, 0)
}

func (s *Server) handleTranslations(w http.ResponseWriter, r *http.Request) {
	list, err := s.lib.Translations()
	if err != nil {
		logging.ErrorContext(r.Context(), "list translations failed", "error", err)
		respondError(w, http.StatusInternalServerError, "LIBRARY_ERROR", "could not list translations")
		return
	}
	respond(w, http.StatusOK, list, len(list))
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	books, err := s.lib.Books(r.Context(), code)
	if err != nil {
		s.respondLibraryError(w, r, code, err)
		return
	}
	out := make([]BookEntry, len(books))
	for i, b := range books {
		out[i] = BookEntry{ID: b.ID, Name: b.Name, Chapters: b.Chapters}
	}
	respond(w, http.StatusOK, out, len(out))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("t")
	query := strings.TrimSpace(q.Get("q"))
	if code == "" || query == "" {
		s.metrics.observeSearch("bad_request", 0)
		respondError(w, http.StatusBadRequest, "MISSING_PARAM", "t and q are required")
		return
	}

	limit := DefaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.metrics.observeSearch("bad_request", 0)
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "limit must be a positive integer")
			return
		}
		limit = min(n, MaxSearchLimit)
	}

	start := time.Now()
	idx, err := s.lib.Index(code)
	if err != nil {
		s.metrics.observeSearch("error", time.Since(start))
		s.respondLibraryError(w, r, code, err)
		return
	}
	hits := idx.Search(query, limit)
	if hits == nil {
		hits = []search.Hit{}
	}
	s.metrics.observeSearch("ok", time.Since(start))
	respond(w, http.StatusOK, SearchResult{Translation: code, Query: query, Hits: hits}, len(hits))
}

// respondLibraryError maps library errors onto HTTP statuses. Anything other
// than a bad or unknown code, a corrupt artifact included, means the
// translation cannot be served.
func (s *Server) respondLibraryError(w http.ResponseWriter, r *http.Request, code string, err error) {
	var verr *errors.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, "INVALID_TRANSLATION", err.Error())
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		logging.ErrorContext(r.Context(), "translation unavailable", "translation", code, "error", err)
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", UnavailableMessage)
	}
}

func respond(w http.ResponseWriter, status int, data interface{}, total int) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
