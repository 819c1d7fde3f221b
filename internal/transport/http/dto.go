package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/license"
)

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		if errors.Is(err, license.ErrInvalidSpec) {
			return err
		}
		return errors.New("malformed JSON body")
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

type expiryRequest struct {
	Kind string `json:"kind" validate:"required,oneof=hours days perpetual"`
	N    int    `json:"n" validate:"gte=0"`
}

func (e expiryRequest) spec() license.ExpirySpec {
	return license.ExpirySpec{Kind: license.ExpiryKind(e.Kind), N: e.N}
}

type createKeyRequest struct {
	ID          string        `json:"id" validate:"required,max=128"`
	Contact     string        `json:"contact" validate:"max=256"`
	DeviceLimit int           `json:"device_limit" validate:"required,min=1"`
	Expiry      expiryRequest `json:"expiry"`
}

type editKeyRequest struct {
	Contact     string               `json:"contact" validate:"max=256"`
	DeviceLimit int                  `json:"device_limit" validate:"required,min=1"`
	ExpiresAt   *license.ExpiryValue `json:"expires_at" validate:"required"`
}

// resetKeyRequest carries either an absolute expiry or a duration resolved
// at request time.
type resetKeyRequest struct {
	ExpiresAt *license.ExpiryValue `json:"expires_at" validate:"required_without=Expiry,excluded_with=Expiry"`
	Expiry    *expiryRequest       `json:"expiry" validate:"required_without=ExpiresAt"`
}

type validateRequest struct {
	KeyID    string `json:"key_id" validate:"required,max=128"`
	DeviceID string `json:"device_id" validate:"required,max=256"`
}

type appendAuditRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=validation admin-action"`
	Message  string `json:"message" validate:"required,max=1024"`
	KeyID    string `json:"key_id" validate:"max=128"`
	DeviceID string `json:"device_id" validate:"max=256"`
}

type publishReleaseRequest struct {
	Version     string `json:"version" validate:"required,max=64"`
	Description string `json:"description" validate:"max=4096"`
	Link        string `json:"link" validate:"omitempty,url"`
}

type editReleaseRequest struct {
	Description string `json:"description" validate:"max=4096"`
	Link        string `json:"link" validate:"omitempty,url"`
}

type keyListResponse struct {
	Keys []license.LicenseKey `json:"keys"`
}

type idListResponse struct {
	IDs []string `json:"ids"`
}
