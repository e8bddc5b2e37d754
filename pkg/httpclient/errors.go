package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/foodcart/pkg/errors"
)

// maxBodyBytes bounds how much of a response body is ever read.
const maxBodyBytes = 1 << 20

// errorBody covers the two error shapes seen from upstreams: the
// {"error":{"code","message"}} envelope and the food API's
// {"success":false,"message":...} answer.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var body errorBody
	if json.Unmarshal(bodyBytes, &body) == nil {
		switch {
		case body.Error != nil:
			return mapStatus(resp.StatusCode, body.Error.Code, body.Error.Message, serviceName)
		case body.Message != "":
			return mapStatus(resp.StatusCode, "", body.Message, serviceName)
		}
	}

	return mapStatus(resp.StatusCode, "", string(bodyBytes), serviceName)
}

func mapStatus(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName+" resource", message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status >= 500:
		return apperrors.Transport(serviceName, fmt.Errorf("status %d: %s", status, message))
	default:
		if code == "" {
			code = "UPSTREAM_ERROR"
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

// DecodeJSON decodes a 2xx response body into dst and closes it.
func DecodeJSON(resp *http.Response, dst any) error {
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
