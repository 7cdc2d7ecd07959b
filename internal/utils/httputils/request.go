package httputils

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/wgomg/tably/internal/utils"
)

// DecodeJSON decodes the body as JSON. A missing Content-Type is read as
// JSON; any other media type is rejected with 415.
func DecodeJSON(r *http.Request, v any) error {
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			return &HTTPError{
				Code:    http.StatusUnsupportedMediaType,
				Message: "Content-Type must be application/json",
			}
		}
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &HTTPError{
			Code:    http.StatusBadRequest,
			Message: "Invalid JSON payload: " + err.Error(),
		}
	}
	return nil
}

// LogRequestBody logs the raw body when raw body logging is on and leaves
// r.Body readable again.
func LogRequestBody(r *http.Request, logger *utils.Logger, reqID string) ([]byte, error) {
	if !logger.RawBodyLog {
		return nil, nil
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	logger.Debug(&reqID, "Raw request body: %s", string(bodyBytes))

	return bodyBytes, nil
}
