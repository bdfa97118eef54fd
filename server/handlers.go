package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/ctxutil"
	"github.com/hupe1980/agentcore/status"
)

// InformationResponse is served on /.well-known/information.
type InformationResponse struct {
	core.Information
	Caller      core.Principal `json:"caller" cbor:"caller"`
	StartTimeMS int64          `json:"start_time_ms" cbor:"start_time_ms"`
}

// AgentRunRequest is the body of POST /v1/agents/run. An empty name selects
// the default agent.
type AgentRunRequest struct {
	Name       string `json:"name,omitempty" cbor:"name,omitempty"`
	Prompt     string `json:"prompt" cbor:"prompt"`
	Attachment []byte `json:"attachment,omitempty" cbor:"attachment,omitempty"`
	User       string `json:"user,omitempty" cbor:"user,omitempty"`
}

// ToolCallRequest is the body of POST /v1/tools/call. Args is either a JSON
// encoded string or an object.
type ToolCallRequest struct {
	Name string `json:"name" cbor:"name"`
	Args any    `json:"args,omitempty" cbor:"args,omitempty"`
	User string `json:"user,omitempty" cbor:"user,omitempty"`
}

// ProposalRequest is the body of POST /v1/proposals.
type ProposalRequest struct {
	Method string `json:"method" cbor:"method"`
}

// ProposalResponse acknowledges an applied proposal.
type ProposalResponse struct {
	Result string `json:"result" cbor:"result"`
}

// StatusResponse is served on /v1/status.
type StatusResponse struct {
	Services          map[string]status.ServiceStatus `json:"services" cbor:"services"`
	ActiveInvocations *int                            `json:"active_invocations,omitempty" cbor:"active_invocations,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInformation(w http.ResponseWriter, r *http.Request) {
	detail, _ := strconv.ParseBool(r.URL.Query().Get("detail"))

	writeResponse(w, r, http.StatusOK, InformationResponse{
		Information: s.rt.Information(detail),
		Caller:      ctxutil.CallerFromContext(r.Context()),
		StartTimeMS: s.startTime.UnixMilli(),
	})
}

func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	var req AgentRunRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.rt.AgentRun(r.Context(), req.Name, req.Prompt, req.Attachment, ctxutil.CallerFromContext(r.Context()), req.User)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	writeResponse(w, r, http.StatusOK, out)
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var req ToolCallRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	args, err := encodeArgs(req.Args)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.rt.ToolCall(r.Context(), req.Name, args, ctxutil.CallerFromContext(r.Context()), req.User)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	writeResponse(w, r, http.StatusOK, res)
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	if s.opts.Auth == nil {
		writeError(w, r, http.StatusForbidden, "control plane is disabled")
		return
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, r, http.StatusForbidden, "missing bearer token")
		return
	}

	claims, err := s.opts.Auth.Verify(token)
	if err != nil {
		writeError(w, r, http.StatusForbidden, "invalid or expired token")
		return
	}

	var req ProposalRequest
	if !s.decode(w, r, &req) {
		return
	}

	if !claims.Allows(req.Method) {
		writeError(w, r, http.StatusForbidden, fmt.Sprintf("token does not grant %s", req.Method))
		return
	}

	if err := s.applyProposal(req.Method); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s.opts.Logger.Info("http.proposal.applied", "method", req.Method, "subject", claims.Subject)

	writeResponse(w, r, http.StatusOK, ProposalResponse{Result: "Ok"})
}

// applyProposal handles start_<service> and stop_<service>.
func (s *Server) applyProposal(method string) error {
	var (
		service string
		state   status.ServiceStatus
	)

	if name, ok := strings.CutPrefix(method, "start_"); ok {
		service, state = name, status.Running
	} else if name, ok := strings.CutPrefix(method, "stop_"); ok {
		service, state = name, status.Stopped
	}

	st, ok := s.opts.Services.Lookup(service)
	if service == "" || !ok {
		return fmt.Errorf("unsupported method %s", method)
	}

	st.Set(state)

	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Services: s.opts.Services.Snapshot()}

	if a, ok := s.rt.(interface{ ActiveInvocations() int }); ok {
		n := a.ActiveInvocations()
		resp.ActiveInvocations = &n
	}

	writeResponse(w, r, http.StatusOK, resp)
}

// decode reads a size limited body and writes the error response itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	if err := decodeBody(r, target); err != nil {
		code := http.StatusBadRequest

		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			code = http.StatusRequestEntityTooLarge
		case errors.Is(err, errUnsupportedMediaType):
			code = http.StatusUnsupportedMediaType
		}

		writeError(w, r, code, err.Error())

		return false
	}

	return true
}

// encodeArgs turns the args field into the JSON string a tool expects.
func encodeArgs(v any) (string, error) {
	switch a := v.(type) {
	case nil:
		return "{}", nil
	case string:
		return a, nil
	default:
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("invalid args: %w", err)
		}
		return string(b), nil
	}
}
