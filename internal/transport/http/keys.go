package http

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/license"
)

func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	key, err := s.registry.Create(r.Context(), req.ID, req.Contact, req.DeviceLimit, req.Expiry.spec())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, key)
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	if contact := r.URL.Query().Get("contact"); contact != "" {
		keys, err := s.registry.FindByContact(r.Context(), contact)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if keys == nil {
			keys = []license.LicenseKey{}
		}
		render.JSON(w, r, keyListResponse{Keys: keys})
		return
	}

	all, err := s.registry.ListAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	keys := make([]license.LicenseKey, 0, len(all))
	for _, k := range all {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b license.LicenseKey) int { return cmp.Compare(a.ID, b.ID) })
	render.JSON(w, r, keyListResponse{Keys: keys})
}

func (s *Server) listSuspicious(w http.ResponseWriter, r *http.Request) {
	ids, err := s.registry.ListSuspicious(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, idListResponse{IDs: ids})
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, key)
}

func (s *Server) editKey(w http.ResponseWriter, r *http.Request) {
	var req editKeyRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	key, err := s.registry.Edit(r.Context(), chi.URLParam(r, "id"), req.Contact, req.DeviceLimit, *req.ExpiresAt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, key)
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) blockKey(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Block(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unblockKey(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Unblock(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetKey(w http.ResponseWriter, r *http.Request) {
	var req resetKeyRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	var expiry license.ExpiryValue
	if req.Expiry != nil {
		resolved, err := license.Resolve(req.Expiry.spec(), s.now())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		expiry = resolved
	} else {
		expiry = *req.ExpiresAt
	}

	key, err := s.registry.Reset(r.Context(), chi.URLParam(r, "id"), expiry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, key)
}

func (s *Server) unbindDevice(w http.ResponseWriter, r *http.Request) {
	err := s.registry.UnbindDevice(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "deviceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateKey answers 200 for every decision, including denials.
func (s *Server) validateKey(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	res, err := s.engine.Validate(r.Context(), req.KeyID, req.DeviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, res)
}
