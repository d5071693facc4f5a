package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

// SystemRules validates the network and MQTT settings form.
var SystemRules = Rules{
	"NET_STATIC":  {Type: TypeBoolean},
	"NET_IP":      {Type: TypeIP, Message: "Invalid IP address"},
	"NET_GW":      {Type: TypeIP, Message: "Invalid gateway address"},
	"NET_SN":      {Type: TypeIP, Message: "Invalid subnet mask"},
	"NET_PDNS":    {Type: TypeIP, Message: "Invalid primary DNS"},
	"NET_SDNS":    {Type: TypeIP, Message: "Invalid secondary DNS"},
	"MQTT_ACTIVE": {Type: TypeBoolean},
	"MQTT_HOST":   {Type: TypeString, Sanitize: true},
	"MQTT_PORT":   {Type: TypeNumber, Message: "Port must be a number"},
	"MQTT_USER":   {Type: TypeString, Sanitize: true},
	"MQTT_PASS":   {Type: TypeString},
	"MQTT_PREFIX": {Type: TypeString, Sanitize: true},
}

type SystemService struct {
	base
}

// Settings reads the device's system configuration.
func (s *SystemService) Settings(ctx context.Context) Result[map[string]any] {
	return decode[map[string]any](s.get(ctx, EndpointSystem))
}

// UpdateSettings validates settings and posts them. Invalid input never
// reaches the network.
func (s *SystemService) UpdateSettings(ctx context.Context, settings map[string]any) Result[json.RawMessage] {
	clean, err := Validate(settings, SystemRules)
	if err != nil {
		return fail[json.RawMessage](err)
	}
	return s.postJSON(ctx, EndpointSystem, clean)
}

func (s *SystemService) UpdateSetting(ctx context.Context, key string, value any) Result[json.RawMessage] {
	return s.UpdateSettings(ctx, map[string]any{key: value})
}

// Reboot asks the device to restart.
func (s *SystemService) Reboot(ctx context.Context) Result[json.RawMessage] {
	raw, err := s.call(ctx, EndpointReboot, protocol.Descriptor{Method: http.MethodPost})
	if err != nil {
		return fail[json.RawMessage](err)
	}
	return ok(raw)
}
