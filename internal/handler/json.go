package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/auth"
	"github.com/DukeRupert/fixmatch/internal/domain"
)

// maxBodyBytes caps JSON request bodies. Photo uploads have their own limit.
const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so typos surface as 400s instead of silently doing nothing.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxErr):
			return domain.Errorf(domain.ETOOLARGE, op, "request body must not exceed %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return domain.Invalid(op, "request body must not be empty")
		case errors.As(err, &syntaxErr):
			return domain.Invalid(op, fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
		case errors.As(err, &typeErr):
			return domain.NewValidationError(op, typeErr.Field, "has the wrong type")
		default:
			return domain.Invalid(op, "request body is not valid JSON")
		}
	}
	if dec.More() {
		return domain.Invalid(op, "request body must contain a single JSON object")
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Errorf(domain.ENOTFOUND, op, "request not found")
	}
	return id, nil
}

// principal returns the authenticated caller. Routes are mounted behind
// RequirePrincipal, so a nil here is a wiring mistake.
func principal(r *http.Request) (domain.Principal, bool) {
	p := auth.GetPrincipalFromRequest(r)
	if p == nil {
		return domain.Principal{}, false
	}
	return *p, true
}

// okJSON writes v with 200 OK.
func okJSON(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}
