package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sentinel messages that are not JSON envelopes.
const (
	SentinelReload         = "reload"
	SentinelAccountUpdated = "account-updated"
)

// RPC methods a panel may call.
const (
	MethodGetAccessToken       = "getAccessToken"
	MethodCloseModal           = "closeModal"
	MethodGetUser              = "getUser"
	MethodAccountManagementAPI = "accountManagementApi"
)

// Request is an inbound envelope. CallbackID is opaque and echoed back verbatim.
type Request struct {
	Method     string          `json:"method"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CallbackID json.RawMessage `json:"callbackId"`
}

// Reply answers a Request.
type Reply struct {
	Method     string          `json:"method"`
	CallbackID json.RawMessage `json:"callbackId"`
	Payload    any             `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// APICall is the payload of an accountManagementApi request.
type APICall struct {
	Resource string          `json:"resource"`
	Method   string          `json:"method"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// Arguments returns the positional arguments. Anything other than a JSON array
// yields an empty list.
func (c APICall) Arguments() []json.RawMessage {
	var args []json.RawMessage
	if err := json.Unmarshal(c.Args, &args); err != nil {
		return []json.RawMessage{}
	}
	if args == nil {
		return []json.RawMessage{}
	}
	return args
}

// DecodeRequest parses a message body into a Request.
func DecodeRequest(data string) (Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return Request{}, fmt.Errorf("decode envelope: %w", err)
	}
	if req.Method == "" {
		return Request{}, fmt.Errorf("decode envelope: method is required")
	}
	return req, nil
}

// DecodeAPICall parses the payload of an accountManagementApi request.
func DecodeAPICall(payload json.RawMessage) (APICall, error) {
	var call APICall
	if len(bytes.TrimSpace(payload)) == 0 {
		return call, fmt.Errorf("decode api call: empty payload")
	}
	if err := json.Unmarshal(payload, &call); err != nil {
		return call, fmt.Errorf("decode api call: %w", err)
	}
	return call, nil
}

// Encode serializes r. A missing callback id is sent as null.
func (r Reply) Encode() (string, error) {
	if len(r.CallbackID) == 0 {
		r.CallbackID = json.RawMessage("null")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode reply: %w", err)
	}
	return string(b), nil
}
