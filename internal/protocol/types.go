package protocol

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Descriptor is one device call, shaped the same way whichever transport
// ends up carrying it.
type Descriptor struct {
	URL     string
	Method  string
	Header  http.Header
	Body    []byte
	IsImage bool
}

func (d Descriptor) MethodOrGet() string {
	if d.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(d.Method)
}

// Mutating reports whether the device answers this call without a usable body.
func (d Descriptor) Mutating() bool {
	switch d.MethodOrGet() {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// BridgeRequest is posted to the host relay. URL is device-relative.
type BridgeRequest struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Method  string `json:"method"`
	Body    string `json:"body,omitempty"`
	IsImage bool   `json:"isImage,omitempty"`
}

// BridgeResponse answers a BridgeRequest with the same ID.
type BridgeResponse struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Control message types accepted by the offline worker.
const (
	ControlSkipWaiting = "SKIP_WAITING"
	ControlGetVersion  = "GET_VERSION"
	ControlClearCache  = "CLEAR_CACHE"
	ControlSetDeviceIP = "SET_ESP_IP"
)

type ControlMessage struct {
	Type string `json:"type"`
	IP   string `json:"ip,omitempty"`
}

type ControlReply struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MutationOK is the body reported for mutating calls in direct mode.
var MutationOK = json.RawMessage(`{"success":true}`)
