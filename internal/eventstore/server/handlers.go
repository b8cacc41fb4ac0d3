package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aevon-lab/eventstore/internal/eventstore"
	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
	"github.com/aevon-lab/eventstore/internal/eventstore/token"
)

// eventRequest is the wire shape for one appended event, matching
// eventstore.EventMessage field-for-field except Timestamp (RFC3339 on the
// wire, parsed to time.Time) and GlobalIndex (server-assigned, never
// accepted from the caller). EventID is optional — a caller with no
// natural idempotency key of its own gets one generated.
type eventRequest struct {
	EventID         string          `json:"event_id"`
	AggregateID     string          `json:"aggregate_id" binding:"required"`
	SequenceNumber  int64           `json:"sequence_number"`
	AggregateType   string          `json:"aggregate_type" binding:"required"`
	Timestamp       time.Time       `json:"timestamp"`
	PayloadType     string          `json:"payload_type" binding:"required"`
	PayloadRevision int             `json:"payload_revision"`
	Payload         json.RawMessage `json:"payload" binding:"required"`
	Metadata        json.RawMessage `json:"metadata"`
}

type appendEventsRequest struct {
	Events []eventRequest `json:"events" binding:"required,min=1"`
}

// appendEventsHandler handles POST /v1/events.
func (s *Server) appendEventsHandler(c *gin.Context) {
	var req appendEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
		return
	}

	now := time.Now().UTC()
	events := make([]eventstore.EventMessage, len(req.Events))
	for i, e := range req.Events {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = now
		}
		eventID := e.EventID
		if eventID == "" {
			eventID = eventstore.NewEventID()
		}
		events[i] = eventstore.EventMessage{
			EventID:         eventID,
			AggregateID:     e.AggregateID,
			SequenceNumber:  e.SequenceNumber,
			AggregateType:   e.AggregateType,
			Timestamp:       ts,
			PayloadType:     e.PayloadType,
			PayloadRevision: e.PayloadRevision,
			Payload:         []byte(e.Payload),
			Metadata:        []byte(e.Metadata),
		}
	}

	if err := s.store.AppendEvents(c.Request.Context(), events); err != nil {
		writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "count": len(events)})
}

// readAggregateHandler handles GET /v1/aggregates/:id?from=<seq>&limit=<n>,
// returning events ascending alongside the latest snapshot if one exists.
func (s *Server) readAggregateHandler(c *gin.Context) {
	aggregateID := c.Param("id")
	from := parseInt64Query(c, "from", 0)
	limit := int(parseInt64Query(c, "limit", 0))

	events, err := s.store.ReadAggregate(c.Request.Context(), aggregateID, from, limit)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	snapshot, err := s.store.ReadLatestSnapshot(c.Request.Context(), aggregateID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aggregate_id": aggregateID,
		"snapshot":     snapshot,
		"events":       events,
	})
}

// readTrackedHandler handles GET /v1/stream?token=<wire-json>&limit=<n>. An
// absent or empty token means "start from the beginning".
func (s *Server) readTrackedHandler(c *gin.Context) {
	var prev *token.Token
	if raw := c.Query("token"); raw != "" {
		var t token.Token
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			writeStoreError(c, err)
			return
		}
		prev = &t
	}
	limit := int(parseInt64Query(c, "limit", 0))

	tracked, err := s.store.ReadTracked(c.Request.Context(), prev, limit)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	if len(tracked) > 0 {
		last := tracked[len(tracked)-1]
		if wire, err := json.Marshal(last.Token); err == nil {
			c.Header("X-Next-Token", string(wire))
		}
	}

	c.JSON(http.StatusOK, gin.H{"events": tracked})
}

func parseInt64Query(c *gin.Context, key string, def int64) int64 {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeStoreError(c *gin.Context, err error) {
	var concurrency *engineerr.ConcurrencyError
	if errors.As(err, &concurrency) {
		slog.Warn("[Server] Concurrency conflict", "aggregate_id", concurrency.AggregateID, "sequence_number", concurrency.SequenceNumber)
		c.JSON(http.StatusConflict, gin.H{"error": "concurrency conflict", "detail": err.Error()})
		return
	}
	if errors.Is(err, engineerr.ErrInvalidToken) {
		slog.Warn("[Server] Rejected malformed tracking token", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token", "detail": err.Error()})
		return
	}
	if errors.Is(err, engineerr.ErrStorage) {
		slog.Error("[Server] Storage failure", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure", "detail": err.Error()})
		return
	}
	slog.Error("[Server] Request failed", "error", err)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
