package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tablefs/internal/contextutil"
	"tablefs/internal/dispatch"
)

// serviceName prefixes the source_id of every response envelope.
const serviceName = "tablefs"

// Nack codes of the acknowledgment protocol.
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInvalidField  = "INVALID_FIELD"
	CodeRequestFailed = "REQUEST_FAILED"
	CodeSystemError   = "SYSTEM_ERROR"
)

// unknownRequestID is used whenever a request id is absent or the body was
// never parsed (auth failures, malformed JSON).
const unknownRequestID = "unknown"

// Request is the incoming JSON envelope.
type Request struct {
	RequestID string          `json:"request_id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
}

// Envelope is the outgoing ack/nack wrapper around every JSON response.
type Envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	SourceID  string `json:"source_id"`
	Payload   any    `json:"payload"`
}

// NackPayload is the payload of a negative acknowledgment.
type NackPayload struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EnvelopeHandler terminates the HTTP boundary of the action protocol:
// method check, bearer-token authentication, envelope parsing, dispatch,
// and ack/nack construction.
type EnvelopeHandler struct {
	dispatcher *dispatch.Dispatcher
	writeToken string
	sourceID   string
}

// NewEnvelopeHandler creates an EnvelopeHandler. instanceID distinguishes
// this process in the source_id of every envelope it emits.
func NewEnvelopeHandler(dispatcher *dispatch.Dispatcher, writeToken, instanceID string) *EnvelopeHandler {
	return &EnvelopeHandler{
		dispatcher: dispatcher,
		writeToken: writeToken,
		sourceID:   serviceName + ":" + instanceID,
	}
}

// ServeHTTP handles one protocol request. Only POST carries the protocol;
// every other method gets a plain 405 with no JSON envelope.
func (h *EnvelopeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		// The diagnostic stays fixed: neither the presented nor the
		// configured token may leak into a response.
		logger.WarnContext(ctx, "rejected unauthorized request", "remote_addr", r.RemoteAddr)
		h.writeNack(w, unknownRequestID, CodeUnauthorized, "Invalid or missing bearer token")
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "malformed request body", "error", err)
		h.writeNack(w, unknownRequestID, CodeSystemError, err.Error())
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = unknownRequestID
	}

	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		logger.WarnContext(ctx, "request missing payload", "action", req.Action)
		h.writeNack(w, requestID, CodeInvalidField, "Missing required field: payload")
		return
	}

	result, err := h.dispatcher.Dispatch(ctx, req.Action, req.Payload)
	if err != nil {
		var fail *dispatch.FailError
		if errors.As(err, &fail) {
			logger.InfoContext(ctx, "request failed", "action", req.Action, "reason", fail.Message)
			h.writeNack(w, requestID, CodeRequestFailed, fail.Message)
			return
		}
		logger.ErrorContext(ctx, "dispatch error", "action", req.Action, "error", err)
		h.writeNack(w, requestID, CodeSystemError, err.Error())
		return
	}

	h.writeAck(w, requestID, result)
}

// authorized compares the bearer token against the configured write token in
// constant time.
func (h *EnvelopeHandler) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.writeToken)) == 1
}

func (h *EnvelopeHandler) writeAck(w http.ResponseWriter, requestID string, payload any) {
	h.writeEnvelope(w, http.StatusOK, Envelope{
		Type:      "ack",
		RequestID: requestID,
		SourceID:  h.sourceID,
		Payload:   payload,
	})
}

func (h *EnvelopeHandler) writeNack(w http.ResponseWriter, requestID, code, message string) {
	h.writeEnvelope(w, http.StatusBadRequest, Envelope{
		Type:      "nack",
		RequestID: requestID,
		SourceID:  h.sourceID,
		Payload: NackPayload{
			Status:  "error",
			Code:    code,
			Message: message,
		},
	})
}

// writeEnvelope marshals before touching the ResponseWriter so an encoding
// fault can still produce a clean 400.
func (h *EnvelopeHandler) writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	body, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		env.Payload = NackPayload{
			Status:  "error",
			Code:    CodeSystemError,
			Message: "Failed to encode response",
		}
		env.Type = "nack"
		body, _ = json.MarshalIndent(env, "", "  ")
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
