package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response body is kept for the error message.
const maxErrorBody = 512

// ErrMissingAPIKey is returned when no API key is configured for the chat endpoint.
var ErrMissingAPIKey = errors.New("anthropic API key not configured (run `tierchat secrets set anthropic_api_key` or set ANTHROPIC_API_KEY)")

// APIError surfaces a failed exchange with HTTP metadata. StatusCode is zero
// when the error arrived as an event inside an otherwise successful stream.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Type == "":
		return fmt.Sprintf("anthropic API error: %s", e.Message)
	case e.StatusCode == 0:
		return fmt.Sprintf("anthropic API error (%s): %s", e.Type, e.Message)
	case e.Type == "":
		return fmt.Sprintf("anthropic API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("anthropic API error (%d, %s): %s", e.StatusCode, e.Type, e.Message)
}

// readAPIError drains a non-2xx response into an APIError.
func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%s (reading body: %v)", resp.Status, err)}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Type: envelope.Error.Type, Message: envelope.Error.Message}
	}

	if len(body) > maxErrorBody {
		body = append(body[:maxErrorBody:maxErrorBody], "..."...)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
