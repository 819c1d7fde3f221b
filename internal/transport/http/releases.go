package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/release"
)

type releaseListResponse struct {
	Releases []release.Entry `json:"releases"`
}

func (s *Server) listReleases(w http.ResponseWriter, r *http.Request) {
	entries, err := s.releases.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, releaseListResponse{Releases: entries})
}

func (s *Server) publishRelease(w http.ResponseWriter, r *http.Request) {
	var req publishReleaseRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	entry, err := s.releases.Publish(r.Context(), req.Version, req.Description, req.Link)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}

func (s *Server) latestRelease(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := s.releases.Latest(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, release.ErrNotFound)
		return
	}
	render.JSON(w, r, entry)
}

func (s *Server) editRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := s.releaseID(w, r)
	if !ok {
		return
	}
	var req editReleaseRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	entry, err := s.releases.Edit(r.Context(), id, req.Description, req.Link)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, entry)
}

func (s *Server) removeRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := s.releaseID(w, r)
	if !ok {
		return
	}
	if err := s.releases.Remove(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) releaseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		s.badRequest(w, r, errors.New("release id must be a positive integer"))
		return 0, false
	}
	return id, true
}
