// Package debate exposes the debate core over HTTP: starting a debate,
// polling or streaming its progress, and recording user feedback. Handlers are plain net/http, grounded on the teacher's
// handler shapes (CORS headers repeated per handler, SSE via http.Flusher
// with a heartbeat ticker, a JSON body decoded into a request struct) with
// the finance-specific fields replaced by the debate domain's own.
package debate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/hooks"
	"github.com/slior/dialectic/pkg/core/model"
	"github.com/slior/dialectic/pkg/runner"
)

// Handlers bundles the Runner every handler closes over. Construct one per
// process and register its methods with an http.ServeMux.
type Handlers struct {
	Runner *runner.Runner
}

// New returns a Handlers bound to rn.
func New(rn *runner.Runner) *Handlers {
	return &Handlers{Runner: rn}
}

// StartDebateRequest is the body of POST /debates.
type StartDebateRequest struct {
	Problem        string              `json:"problem"`
	Context        string              `json:"context,omitempty"`
	Agents         []model.AgentConfig `json:"agents"`
	Judge          model.AgentConfig   `json:"judge"`
	Config         model.DebateConfig  `json:"config"`
	Clarifications map[string]string   `json:"clarificationAnswers,omitempty"`
}

// StartDebateResponse is the body of a successful POST /debates.
type StartDebateResponse struct {
	DebateID string `json:"debateId"`
}

// FeedbackRequest is the body of POST /debates/{id}/feedback.
type FeedbackRequest struct {
	Feedback int `json:"feedback"`
}

func cors(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// HandleStartDebate starts a new debate in the background and returns its
// id immediately.
func (h *Handlers) HandleStartDebate(w http.ResponseWriter, r *http.Request) {
	cors(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StartDebateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Problem == "" {
		http.Error(w, "problem is required", http.StatusBadRequest)
		return
	}
	if len(req.Agents) == 0 {
		http.Error(w, "at least one agent is required", http.StatusBadRequest)
		return
	}

	id, err := h.Runner.StartDebate(req.Problem, req.Context, req.Agents, req.Judge, req.Config, req.Clarifications)
	if err != nil {
		writeDebateErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StartDebateResponse{DebateID: id})
}

// HandleGetDebate returns a debate's persisted state by id.
func (h *Handlers) HandleGetDebate(w http.ResponseWriter, r *http.Request, id string) {
	cors(w, "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ds, err := h.Runner.Result(id)
	if err != nil {
		writeDebateErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ds)
}

// HandleFeedback records a thumbs-up/down on a completed debate.
func (h *Handlers) HandleFeedback(w http.ResponseWriter, r *http.Request, id string) {
	cors(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	ds, err := h.Runner.Feedback(id, req.Feedback)
	if err != nil {
		writeDebateErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ds)
}

// HandleStreamDebate streams a debate's progress events over SSE,
// including a 15-second heartbeat to keep the connection alive through
// intermediate proxies.
func (h *Handlers) HandleStreamDebate(w http.ResponseWriter, r *http.Request, id string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "text/event-stream")

	events, unsubscribe, ok := h.Runner.Subscribe(id, 100)
	if !ok {
		http.Error(w, "Debate ID not found", http.StatusNotFound)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	notify := r.Context().Done()

	for {
		select {
		case ev, open := <-events:
			if !open {
				sendSSEEvent(w, flusher, "status", "completed")
				return
			}
			if err := sendSSE(w, flusher, ev); err != nil {
				return
			}
			if ev.Type == hooks.EventSynthesisComplete {
				sendSSEEvent(w, flusher, "status", "completed")
				return
			}
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
	return nil
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func writeDebateErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch debateerr.KindOf(err) {
	case debateerr.InvalidInput, debateerr.ConfigError:
		status = http.StatusBadRequest
	case debateerr.NotFound:
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
