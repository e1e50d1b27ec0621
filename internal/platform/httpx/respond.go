// Package httpx writes JSON bodies and RFC 7807 problem documents.
package httpx

import (
	"encoding/json"
	"net/http"
)

const (
	contentJSON    = "application/json"
	contentProblem = "application/problem+json"
)

// ProblemDetail is an RFC 7807 problem document. Code carries the engine
// error kind when one applies.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// JSON writes data as a JSON body.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, contentJSON, status, data)
}

// Problem writes a problem document without an error kind.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	WriteProblem(w, ProblemDetail{Title: title, Status: status, Detail: detail})
}

// WriteProblem writes pd, defaulting Type to about:blank.
func WriteProblem(w http.ResponseWriter, pd ProblemDetail) {
	if pd.Type == "" {
		pd.Type = "about:blank"
	}
	if pd.Title == "" {
		pd.Title = http.StatusText(pd.Status)
	}
	write(w, contentProblem, pd.Status, pd)
}

func write(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
