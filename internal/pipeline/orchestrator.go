package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"waterwise/internal/logger"
	"waterwise/internal/metrics"
	"waterwise/internal/models"
	"waterwise/internal/predictor"
	"waterwise/internal/session"
	"waterwise/internal/validation"
)

// statusClientClosedRequest is logged when the caller went away mid-prediction.
const statusClientClosedRequest = 499

// Stage is a step of the per-request state machine.
type Stage string

const (
	StageReceived   Stage = "received"
	StageAuthorized Stage = "authorized"
	StageValidated  Stage = "validated"
	StagePredicted  Stage = "predicted"
	StageResponded  Stage = "responded"
)

// Predictor classifies a validated sample.
type Predictor interface {
	Predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error)
}

// Recorder takes a record for persistence after the response is sent.
// Enqueue must not block.
type Recorder interface {
	Enqueue(rec models.Record) bool
}

// Orchestrator runs authorize, validate, predict, respond, then hands the
// record to the Recorder. Each request is independent.
type Orchestrator struct {
	auth         session.Authorizer
	predictor    Predictor
	recorder     Recorder
	maxBodyBytes int64
}

func New(auth session.Authorizer, p Predictor, rec Recorder, maxBodyBytes int64) *Orchestrator {
	return &Orchestrator{auth: auth, predictor: p, recorder: rec, maxBodyBytes: maxBodyBytes}
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ServeHTTP handles POST /submit.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	stage := StageReceived

	fail := func(status int, outcome string, body errorBody, fields map[string]interface{}) {
		metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
		body.RequestID = requestID
		if fields == nil {
			fields = map[string]interface{}{}
		}
		fields["request_id"] = requestID
		fields["stage"] = string(stage)
		fields["outcome"] = outcome
		if status >= http.StatusInternalServerError {
			logger.Error("submission failed", fields)
		} else {
			logger.Warn("submission rejected", fields)
		}
		writeJSON(w, status, body)
	}

	identity, err := o.auth.Authorize(r)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			fail(http.StatusUnauthorized, "unauthorized", errorBody{Error: "Unauthorized", Code: "unauthorized"}, nil)
			return
		}
		fail(http.StatusServiceUnavailable, "session_unavailable",
			errorBody{Error: "Session store unavailable", Code: "session_unavailable"},
			map[string]interface{}{"error": err.Error()})
		return
	}
	stage = StageAuthorized

	sub, err := decodeSubmission(w, r, o.maxBodyBytes)
	if err != nil {
		fail(http.StatusBadRequest, "invalid", errorBody{Error: err.Error(), Code: "invalid_payload"},
			map[string]interface{}{"subject_id": identity.SubjectID})
		return
	}

	req, err := validation.Validate(sub)
	if err != nil {
		var verr *validation.Error
		body := errorBody{Error: err.Error(), Code: "validation_failed"}
		if errors.As(err, &verr) {
			body.Field = verr.Field
		}
		fail(http.StatusBadRequest, "invalid", body, map[string]interface{}{
			"subject_id": identity.SubjectID,
			"field":      body.Field,
		})
		return
	}
	stage = StageValidated

	result, err := o.predictor.Predict(r.Context(), req)
	if err != nil {
		status, outcome, body := classifyPredictionError(err)
		fail(status, outcome, body, map[string]interface{}{
			"subject_id": identity.SubjectID,
			"error":      err.Error(),
		})
		return
	}
	stage = StagePredicted

	writeJSON(w, http.StatusOK, result)
	stage = StageResponded
	metrics.SubmissionsTotal.WithLabelValues("predicted").Inc()

	queued := o.recorder.Enqueue(models.Record{
		RequestID:  requestID,
		SubjectID:  identity.SubjectID,
		Submission: sub,
		Request:    req,
		Prediction: result.Status,
	})

	logger.Info("submission classified", map[string]interface{}{
		"request_id": requestID,
		"subject_id": identity.SubjectID,
		"stage":      string(stage),
		"status":     result.Status,
		"queued":     queued,
	})
}

func classifyPredictionError(err error) (int, string, errorBody) {
	var (
		ferr *predictor.FailureError
		cerr *predictor.CommunicationError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "canceled",
			errorBody{Error: "Request canceled", Code: "canceled"}
	case errors.As(err, &ferr):
		return http.StatusInternalServerError, "prediction_failed",
			errorBody{Error: "Error during model prediction", Code: "prediction_failed"}
	case errors.As(err, &cerr) && cerr.Timeout:
		return http.StatusGatewayTimeout, "timeout",
			errorBody{Error: "Model prediction timed out", Code: "prediction_timeout"}
	case errors.As(err, &cerr):
		return http.StatusBadGateway, "contract_error",
			errorBody{Error: "Model returned an unusable result", Code: "prediction_contract_error"}
	default:
		return http.StatusInternalServerError, "prediction_failed",
			errorBody{Error: "Error during model prediction", Code: "prediction_failed"}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to write response", map[string]interface{}{"error": err.Error()})
	}
}
