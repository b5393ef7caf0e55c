package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"sentinel.org/internal/api"
)

const jsonrpcVersion = "2.0"

// JSON-RPC error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
	rpcApplication    = -32500
)

var jsonrpcContentTypes = map[string]struct{}{
	"application/json":        {},
	"application/json-rpc":    {},
	"application/jsonrequest": {},
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
	Auth    json.RawMessage `json:"auth"`
}

type rpcError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    string   `json:"data"`
	Debug   []string `json:"debug,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

var nullID = json.RawMessage("null")

func errorResponse(id json.RawMessage, e *rpcError) rpcResponse {
	if len(id) == 0 {
		id = nullID
	}
	return rpcResponse{JSONRPC: jsonrpcVersion, Error: e, ID: id}
}

// rpcErrorFrom maps an API error onto its JSON-RPC form. The API message
// travels in data.
func rpcErrorFrom(e *api.ResponseError) *rpcError {
	out := &rpcError{Data: e.Message, Debug: e.Debug}
	switch e.Code {
	case api.CodeNoSuchMethod:
		out.Code, out.Message = rpcMethodNotFound, "Method not found."
	case api.CodeParametersInvalid, api.CodeNoAuth:
		out.Code, out.Message = rpcInvalidParams, "Invalid params."
	default:
		out.Code, out.Message = rpcApplication, "Application error."
	}
	return out
}

// JSONRPC serves POST /api_jsonrpc with single and batch requests.
func (a *API) JSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if _, ok := jsonrpcContentTypes[strings.ToLower(ct)]; !ok {
		writeError(w, r, http.StatusPreconditionFailed, "Content-Type must be one of application/json-rpc, application/json, application/jsonrequest")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "read request body")
		return
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		writeJSON(w, http.StatusOK, errorResponse(nil, &rpcError{
			Code:    rpcParseError,
			Message: "Parse error.",
			Data:    "Invalid JSON. An error occurred on the server while parsing the JSON text.",
		}))
		return
	}

	if body[0] != '[' {
		resp, reply := a.serveOne(w, r, body)
		if !reply {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
		writeJSON(w, http.StatusOK, errorResponse(nil, invalidRequest("Invalid parameter \"/\": cannot be empty.")))
		return
	}
	out := make([]rpcResponse, 0, len(batch))
	for _, item := range batch {
		if resp, reply := a.serveOne(w, r, item); reply {
			out = append(out, resp)
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func invalidAuth() *rpcError {
	return &rpcError{Code: rpcInvalidParams, Message: "Invalid params.", Data: `Invalid parameter "/auth": a character string is expected.`}
}

// authMember decodes the "auth" member. Absent and null both mean no
// credential; any other non-string value is rejected.
func authMember(raw json.RawMessage) (*string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func invalidRequest(data string) *rpcError {
	return &rpcError{Code: rpcInvalidRequest, Message: "Invalid request.", Data: data}
}

// serveOne runs one request object. reply is false for notifications.
func (a *API) serveOne(w http.ResponseWriter, r *http.Request, raw json.RawMessage) (rpcResponse, bool) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, invalidRequest("Invalid parameter \"/\": an array or object is expected.")), true
	}
	if req.JSONRPC != jsonrpcVersion {
		return errorResponse(req.ID, invalidRequest(`Invalid parameter "/jsonrpc": value must be "2.0".`)), true
	}
	if req.Method == "" {
		return errorResponse(req.ID, invalidRequest(`Invalid parameter "/method": cannot be empty.`)), true
	}
	notification := req.ID == nil
	member, ok := authMember(req.Auth)
	if !ok {
		return errorResponse(req.ID, invalidAuth()), !notification
	}

	service, method, _ := strings.Cut(req.Method, ".")
	call := api.Request{
		Service: service,
		Method:  method,
		Params:  req.Params,
		Auth:    a.credential(r, service, method, member),
	}
	res := a.calls.Call(r.Context(), call)
	if res.Error != nil {
		return errorResponse(req.ID, rpcErrorFrom(res.Error)), !notification
	}
	a.afterCall(w, call, res)

	result, err := json.Marshal(res.Result)
	if err != nil {
		return errorResponse(req.ID, &rpcError{Code: rpcInternalError, Message: "Internal error.", Data: "Cannot encode result."}), !notification
	}
	return rpcResponse{JSONRPC: jsonrpcVersion, Result: result, ID: req.ID}, !notification
}

// afterCall keeps the session cookie in step with login and logout.
func (a *API) afterCall(w http.ResponseWriter, call api.Request, res api.Response) {
	if a.cookies == nil {
		return
	}
	switch strings.ToLower(call.Service + "." + call.Method) {
	case "user.login":
		sid := sessionFromLogin(res.Result)
		if sid == "" {
			return
		}
		if c, err := a.cookies.Cookie(sid); err == nil {
			http.SetCookie(w, c)
		}
	case "user.logout":
		http.SetCookie(w, a.cookies.Clear())
	}
}

func sessionFromLogin(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case interface{ Session() string }:
		return v.Session()
	}
	return ""
}
