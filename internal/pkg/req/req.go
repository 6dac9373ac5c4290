/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON request bodies strictly: the content type must be JSON, unknown fields
are rejected and nothing may follow the first value.
*/
package req

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// MaxBodySize bounds every JSON request body.
const MaxBodySize int64 = 1 << 20

var (
	// ErrUnsupportedMediaType is returned for a body that is not declared as JSON.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrInvalidJSON is returned for a body that does not decode into the target.
	ErrInvalidJSON = errors.New("invalid request")

	// ErrExtraContent is returned when more data follows the JSON value.
	ErrExtraContent = errors.New("unexpected data after JSON body")
)

// BindJSON decodes the JSON body of r into dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return ErrUnsupportedMediaType
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidJSON
	}

	if decoder.More() {
		return ErrExtraContent
	}

	return nil
}
