package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
)

// upstreamErrorBody covers the error shapes of the APIs this service calls:
// CoolSMS ({"errorCode","errorMessage"}), Kakao ({"code","msg"}) and OAuth2
// token errors ({"error","error_description"}).
type upstreamErrorBody struct {
	ErrorCode        string          `json:"errorCode"`
	ErrorMessage     string          `json:"errorMessage"`
	Msg              string          `json:"msg"`
	Code             json.RawMessage `json:"code"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func (b upstreamErrorBody) code() string {
	switch {
	case b.ErrorCode != "":
		return b.ErrorCode
	case len(b.Code) > 0:
		var s string
		if json.Unmarshal(b.Code, &s) == nil {
			return s
		}
		return string(b.Code)
	case len(b.Error) > 0:
		var s string
		if json.Unmarshal(b.Error, &s) == nil {
			return s
		}
	}
	return ""
}

func (b upstreamErrorBody) message() string {
	for _, m := range []string{b.ErrorMessage, b.Msg, b.ErrorDescription} {
		if m != "" {
			return m
		}
	}
	return ""
}

// ParseResponseError reads the body of a non-2xx response from upstream and
// translates it into an AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", upstream, resp.StatusCode, err)
	}

	var body upstreamErrorBody
	code, msg := "", string(raw)
	if json.Unmarshal(raw, &body) == nil {
		code = body.code()
		if m := body.message(); m != "" {
			msg = m
		}
	}
	return mapUpstreamError(resp.StatusCode, code, msg, upstream)
}

func mapUpstreamError(status int, code, message, upstream string) error {
	qualified := fmt.Sprintf("%s: %s", upstream, message)
	cause := fmt.Errorf("%s returned status %d (%s): %s", upstream, status, code, message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusNotFound:
		return apperrors.NotFound(upstream, message)
	case status == http.StatusTooManyRequests:
		return apperrors.RateLimited(qualified)
	default:
		return apperrors.BadGateway(qualified, cause)
	}
}
