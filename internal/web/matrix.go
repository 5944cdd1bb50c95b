package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// matrixTxnCap bounds the idempotency set; when exceeded the whole set
// is dropped, matching the homeserver's own retry horizon.
const matrixTxnCap = 1000

type matrixTransaction struct {
	Events []matrixTxnEvent `json:"events"`
}

type matrixTxnEvent struct {
	Type    string         `json:"type"`
	RoomID  string         `json:"room_id"`
	Sender  string         `json:"sender"`
	EventID string         `json:"event_id"`
	Content map[string]any `json:"content"`
}

// handleMatrixTransaction accepts homeserver event pushes as an
// alternative to long-poll sync. Transactions are idempotent per ID:
// the homeserver retries until it sees success, so duplicates must not
// re-run commands.
func (s *Server) handleMatrixTransaction(w http.ResponseWriter, r *http.Request) {
	mx := s.channels.ActiveMatrix()
	if mx == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Matrix channel is not active")
		return
	}

	txnID := chi.URLParam(r, "txnID")
	s.txnMu.Lock()
	_, seen := s.txnSeen[txnID]
	s.txnMu.Unlock()
	if seen {
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	var txn matrixTransaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid transaction body")
		return
	}

	for _, ev := range txn.Events {
		mx.HandleEvent(ev.RoomID, ev.Type, ev.Sender, ev.EventID, ev.Content)
	}

	s.txnMu.Lock()
	s.txnSeen[txnID] = struct{}{}
	if len(s.txnSeen) > matrixTxnCap {
		s.txnSeen = make(map[string]struct{})
	}
	s.txnMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
