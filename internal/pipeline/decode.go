package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"waterwise/internal/models"
)

// decodeSubmission reads a JSON object or an urlencoded form into a Submission.
// JSON numbers keep their literal text; nulls count as absent.
func decodeSubmission(w http.ResponseWriter, r *http.Request, maxBytes int64) (models.Submission, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		sub := make(models.Submission, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				sub[k] = v[0]
			}
		}
		return sub, nil
	case "application/json", "":
		return decodeJSON(r.Body)
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func decodeJSON(body io.Reader) (models.Submission, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if payload == nil {
		return nil, errors.New("request body must be a JSON object")
	}

	sub := make(models.Submission, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case nil:
		case string:
			sub[k] = val
		case json.Number:
			sub[k] = val.String()
		case bool:
			sub[k] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("field %s must be a string or number", k)
		}
	}
	return sub, nil
}
