// Package api contains the request and response bodies of the pipeline's
// HTTP API, version 1.
package api

import (
	"net/http"
	"strings"
)

// StartRunRequest is the body of POST /api/v1/runs. An empty body runs
// the whole pipeline in the configured mode.
type StartRunRequest struct {
	Mode string `json:"mode,omitempty"`
	Step string `json:"step,omitempty"`
}

// Bind implements render.Binder
func (req *StartRunRequest) Bind(r *http.Request) error {
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	req.Step = strings.TrimSpace(req.Step)
	return nil
}

// StartRunResponse acknowledges an accepted run
type StartRunResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	PollURL string `json:"poll_url"`
}

// ColumnsResponse lists the columns of one table
type ColumnsResponse struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}
