package http

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/audit"
)

type auditListResponse struct {
	Entries []audit.Entry `json:"entries"`
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	var (
		entries []audit.Entry
		err     error
	)
	if kind := r.URL.Query().Get("kind"); kind != "" {
		entries, err = s.audit.FilterByKind(r.Context(), audit.Kind(kind))
	} else {
		entries, err = s.audit.All(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, auditListResponse{Entries: entries})
}

func (s *Server) appendAudit(w http.ResponseWriter, r *http.Request) {
	var req appendAuditRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	entry, err := s.audit.Append(r.Context(), audit.Entry{
		Kind:     audit.Kind(req.Kind),
		Message:  req.Message,
		KeyID:    req.KeyID,
		DeviceID: req.DeviceID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}
