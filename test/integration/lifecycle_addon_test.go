//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoreAPI_E2ELifecycle_TrackedStream(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	aggregateID := fmt.Sprintf("acct-%d", time.Now().UnixNano())
	var nextToken string

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := h.client.Get(h.baseURL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	})

	t.Run("append first batch of events", func(t *testing.T) {
		req := appendRequest{Events: []eventWire{
			{EventID: "evt-1", AggregateID: aggregateID, SequenceNumber: 1, AggregateType: "ledger", PayloadType: "ledger.deposited", Payload: json.RawMessage(`{"amount":"40.00"}`)},
			{EventID: "evt-2", AggregateID: aggregateID, SequenceNumber: 2, AggregateType: "ledger", PayloadType: "ledger.deposited", Payload: json.RawMessage(`{"amount":"10.00"}`)},
		}}
		status, body := postJSON(t, h.client, h.baseURL+"/v1/events", req)
		require.Equal(t, http.StatusAccepted, status, string(body))
	})

	t.Run("tracked stream returns both events from the beginning", func(t *testing.T) {
		resp, err := h.client.Get(h.baseURL + "/v1/stream?limit=10")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var payload struct {
			Events []struct {
				Event struct {
					AggregateID string `json:"AggregateID"`
				} `json:"Event"`
			} `json:"events"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Len(t, payload.Events, 2)

		nextToken = resp.Header.Get("X-Next-Token")
		require.NotEmpty(t, nextToken)
	})

	t.Run("resuming from the returned token sees nothing new yet", func(t *testing.T) {
		resp, err := h.client.Get(h.baseURL + "/v1/stream?limit=10&token=" + url.QueryEscape(nextToken))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var payload struct {
			Events []json.RawMessage `json:"events"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Len(t, payload.Events, 0)
	})

	t.Run("append a second aggregate then resume picks up only the new event", func(t *testing.T) {
		otherID := fmt.Sprintf("acct-other-%d", time.Now().UnixNano())
		req := appendRequest{Events: []eventWire{
			{EventID: "evt-3", AggregateID: otherID, SequenceNumber: 1, AggregateType: "ledger", PayloadType: "ledger.deposited", Payload: json.RawMessage(`{"amount":"5.00"}`)},
		}}
		status, body := postJSON(t, h.client, h.baseURL+"/v1/events", req)
		require.Equal(t, http.StatusAccepted, status, string(body))

		resp, err := h.client.Get(h.baseURL + "/v1/stream?limit=10&token=" + url.QueryEscape(nextToken))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var payload struct {
			Events []struct {
				Event struct {
					AggregateID string `json:"AggregateID"`
				} `json:"Event"`
			} `json:"events"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Len(t, payload.Events, 1)
		require.Equal(t, otherID, payload.Events[0].Event.AggregateID)
	})
}
