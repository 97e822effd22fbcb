package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/moogar0880/problems"

	"github.com/rendis/lendflow/pkg/schema"
)

// statusFor maps an engine error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeActionUnavailable:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeWorkflowInactive, schema.ErrCodeInvalidTransition:
		return http.StatusConflict
	case schema.ErrCodeConditionNotMet, schema.ErrCodeChainDepth:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeProblem renders err as an RFC 7807 problem. FlowErrors keep their
// message and code; anything else is an internal error.
func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		problem := problems.NewStatusProblem(http.StatusInternalServerError).
			WithInstance(r.URL.Path).
			WithType("internal_error").
			WithError(err)
		writeProblemBody(w, http.StatusInternalServerError, problem)
		return
	}

	status := statusFor(fe.Code)
	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(strings.ToLower(fe.Code)).
		WithDetail(fe.Message)
	writeProblemBody(w, status, problem)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, schema.NewError(schema.ErrCodeValidation, detail))
}

func writeProblemBody(w http.ResponseWriter, status int, problem any) {
	w.Header().Set("Content-Type", problems.ProblemMediaType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
