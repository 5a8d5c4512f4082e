package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"waterwise/internal/models"
)

// Reasons reported in Error.
const (
	ReasonMissing    = "missing"
	ReasonEmpty      = "empty"
	ReasonNotNumeric = "not_numeric"
)

// Error describes the first required field that failed validation.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonMissing, ReasonEmpty:
		return fmt.Sprintf("missing or empty required field: %s", e.Field)
	default:
		return fmt.Sprintf("invalid number for field: %s", e.Field)
	}
}

// Validate checks the required measurements in canonical order and stops at the
// first failure. On success it returns the values the external model is called with.
func Validate(sub models.Submission) (models.PredictionRequest, error) {
	var req models.PredictionRequest

	for i, f := range models.PredictionFields {
		raw, ok := sub[f.Key]
		if !ok {
			return req, &Error{Field: f.Key, Reason: ReasonMissing}
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return req, &Error{Field: f.Key, Reason: ReasonEmpty}
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return req, &Error{Field: f.Key, Reason: ReasonNotNumeric}
		}
		req[i] = v
	}

	return req, nil
}
