package shared

import (
	"encoding/json"
	"errors"
	"net/http"
)

// maxRequestBodySize bounds request bodies to 1 MiB.
const maxRequestBodySize = 1 << 20

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// oversized bodies.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}

	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	return nil
}
