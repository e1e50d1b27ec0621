package httpx

import (
	"net/http"

	"github.com/odyssey-erp/stockbook/internal/shared"
)

type kindProblem struct {
	status int
	title  string
}

var kindProblems = map[shared.Kind]kindProblem{
	shared.KindNotFound:           {http.StatusNotFound, "Not Found"},
	shared.KindInvalid:            {http.StatusBadRequest, "Validation Failed"},
	shared.KindAlreadyReturned:    {http.StatusConflict, "Already Returned"},
	shared.KindInsufficientStock:  {http.StatusConflict, "Insufficient Stock"},
	shared.KindInvariantViolation: {http.StatusConflict, "Invariant Violation"},
	shared.KindTemporalConstraint: {http.StatusConflict, "Temporal Constraint"},
	shared.KindTransientConflict:  {http.StatusServiceUnavailable, "Transient Conflict"},
}

// RespondError writes err as a problem document keyed by its error kind.
// Unclassified errors become a bare 500 so driver detail never leaks.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	p, ok := kindProblems[kind]
	if !ok {
		WriteProblem(w, ProblemDetail{Status: http.StatusInternalServerError, Title: "Internal Error"})
		return
	}
	if kind == shared.KindTransientConflict {
		w.Header().Set("Retry-After", "1")
	}
	WriteProblem(w, ProblemDetail{
		Type:   "urn:stockbook:problem:" + string(kind),
		Title:  p.title,
		Status: p.status,
		Detail: err.Error(),
		Code:   string(kind),
	})
}
