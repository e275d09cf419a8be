// Package provider turns OAuth provider access tokens into profiles.
package provider

import (
	"net/http"

	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// ErrInvalidProviderToken is returned when the provider rejects the access
// token or it was issued for another client.
var ErrInvalidProviderToken = apperrors.New("INVALID_PROVIDER_TOKEN", "invalid provider access token", http.StatusUnauthorized)

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
