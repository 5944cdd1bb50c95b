package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// handleAttachment serves a stored command attachment (oversized hunt
// results) as a download.
func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	att, err := s.store.GetAttachment(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "Attachment not found")
			return
		}
		s.logger.Error("attachment read failed", "id", id, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(att.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(att.Data)
}
