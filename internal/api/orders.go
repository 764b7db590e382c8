package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/service"
)

func (s *Server) handleOrderEvent(w http.ResponseWriter, r *http.Request) {
	var event models.OrderEvent
	if err := decodeJSON(w, r, &event); err != nil {
		s.writeError(w, r, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}

	records, err := s.svc.Tracker().HandleOrderEvent(r.Context(), event)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	// Redeliveries record nothing new; report what the first delivery stored.
	recorded, err := s.svc.Tracker().OrderConversions(r.Context(), event.OrderID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"order_id":    event.OrderID,
		"conversions": len(records),
		"recorded":    len(recorded),
	})
}

func (s *Server) handleProductStats(w http.ResponseWriter, r *http.Request) {
	rng, ok := s.statsRange(w, r)
	if !ok {
		return
	}

	stats, err := s.svc.Tracker().ProductStats(r.Context(), rng)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"products": stats})
}

func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	rng, ok := s.statsRange(w, r)
	if !ok {
		return
	}

	summary, err := s.svc.Tracker().StatsSummary(r.Context(), rng)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) statsRange(w http.ResponseWriter, r *http.Request) (models.StatsRange, bool) {
	q := r.URL.Query()
	from, err := ParseRangeBound(q.Get("from"), false)
	if err != nil {
		s.writeError(w, r, newError(service.CodeInvalidRange, "from must be a date or RFC 3339 time", http.StatusBadRequest))
		return models.StatsRange{}, false
	}
	to, err := ParseRangeBound(q.Get("to"), true)
	if err != nil {
		s.writeError(w, r, newError(service.CodeInvalidRange, "to must be a date or RFC 3339 time", http.StatusBadRequest))
		return models.StatsRange{}, false
	}
	return models.StatsRange{From: from, To: to}, true
}

// ParseRangeBound accepts "2006-01-02" or RFC 3339. A bare date used as an
// upper bound covers the whole day. Empty input is an open bound.
func ParseRangeBound(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if upper {
		// Postgres timestamps keep microseconds; a finer bound rounds up to the next midnight.
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return &t, nil
}
