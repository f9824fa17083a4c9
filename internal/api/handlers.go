package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mqttlink/internal/journal"
	"github.com/nerrad567/mqttlink/internal/link"
)

// maxPublishBody caps the JSON body accepted by /publish.
const maxPublishBody = 1 << 20

type healthResponse struct {
	Status   string `json:"status"`
	Link     string `json:"link"`
	ClientID string `json:"client_id,omitempty"`
	Journal  string `json:"journal,omitempty"`
	Version  string `json:"version"`
}

// handleHealth answers 200 while the link is connected and every optional
// store is healthy, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.link.State()
	resp := healthResponse{
		Status:   "ok",
		Link:     state.String(),
		ClientID: s.link.ClientID(),
		Version:  s.version,
	}

	status := http.StatusOK
	if state != link.Connected {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	if s.store != nil {
		resp.Journal = "ok"
		if err := s.store.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("journal health check failed", "error", err)
			resp.Journal = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

type subscriptionJSON struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	subs := s.link.Subscriptions()
	out := make([]subscriptionJSON, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionJSON{Topic: sub.Topic, QoS: sub.QoS})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": out,
		"count":         len(out),
	})
}

type publishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     int    `json:"qos"`
	Retain  bool   `json:"retain"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.QoS < 0 || req.QoS > 2 {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "qos must be 0, 1, or 2")
		return
	}

	err := s.link.Publish(req.Topic, []byte(req.Payload), byte(req.QoS), req.Retain)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"topic": req.Topic,
			"bytes": len(req.Payload),
		})
	case errors.Is(err, link.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, link.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, link.ErrTransportFailure):
		s.logger.Warn("publish rejected by broker client", "topic", req.Topic, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error("publish failed", "topic", req.Topic, "error", err)
		writeInternalError(w, "publish failed")
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "event journal is disabled")
		return
	}

	filter, err := parseEventFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseEventFilter(r *http.Request) (journal.Filter, error) {
	q := r.URL.Query()
	filter := journal.Filter{
		Kind:     q.Get("kind"),
		ClientID: q.Get("client_id"),
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("since must be an RFC 3339 timestamp")
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}
