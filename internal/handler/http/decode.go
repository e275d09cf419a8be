package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/DrOksusu/dba-portal-auth/pkg/httputil"
	"github.com/DrOksusu/dba-portal-auth/pkg/validator"
)

const maxBodyBytes = 64 << 10

// decode reads a JSON body into dst and validates it. On failure it writes
// the 400 response itself and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: msg},
		})
		return false
	}

	if err := validator.Validate(dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}
