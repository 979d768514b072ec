package dogapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"

	"github.com/tphakala/dogs-go/internal/errors"
)

// envelope is the decoded {"status": ..., "message": ...} body. The message is
// kept raw because its shape depends on the endpoint and on success.
type envelope struct {
	status       string
	errorMessage string
	obj          *jason.Object
}

func decodeEnvelope(body []byte) (*envelope, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, err
	}

	status, err := obj.GetString("status")
	if err != nil {
		return nil, fmt.Errorf("missing status: %w", err)
	}

	env := &envelope{status: status, obj: obj}
	if status != StatusSuccess {
		// error envelopes carry a plain-text message
		env.errorMessage, _ = obj.GetString("message")
	}
	return env, nil
}

func (e *envelope) breedMap() (map[string][]string, error) {
	message, err := e.obj.GetObject("message")
	if err != nil {
		return nil, err
	}

	breeds := make(map[string][]string, len(message.Map()))
	for name, value := range message.Map() {
		items, err := value.Array()
		if err != nil {
			return nil, fmt.Errorf("sub-breeds of %q: %w", name, err)
		}
		subBreeds := make([]string, 0, len(items))
		for _, item := range items {
			sub, err := item.String()
			if err != nil {
				return nil, fmt.Errorf("sub-breed of %q: %w", name, err)
			}
			subBreeds = append(subBreeds, sub)
		}
		breeds[name] = subBreeds
	}
	return breeds, nil
}

func (e *envelope) urlList() ([]string, error) {
	return e.obj.GetStringArray("message")
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	StatusCode int
	Status     string
	// Body is the API's error text, or a plain-text preview of the raw body.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("dog api: unexpected status %s", e.Status)
	}
	return fmt.Sprintf("dog api: unexpected status %s: %s", e.Status, e.Body)
}

// ErrorCategory implements errors.CategorizedError.
func (e *StatusError) ErrorCategory() errors.ErrorCategory {
	if e.StatusCode == http.StatusNotFound {
		return errors.CategoryNotFound
	}
	return errors.CategoryHTTP
}

func newStatusError(resp *http.Response, body []byte) *StatusError {
	se := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if env, err := decodeEnvelope(body); err == nil && env.errorMessage != "" {
		se.Body = env.errorMessage
	} else {
		se.Body = previewBody(resp.Header.Get("Content-Type"), body)
	}
	return se
}

// previewBody returns a short single-line rendering of body for logs and errors.
// Proxies and CDNs answer with HTML pages, which are reduced to their text.
func previewBody(contentType string, body []byte) string {
	text := string(bytes.TrimSpace(body))
	if strings.Contains(contentType, "html") || strings.HasPrefix(text, "<") {
		text = html2text.HTML2Text(text)
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxPreviewSize {
		text = text[:maxPreviewSize] + "..."
	}
	return text
}
