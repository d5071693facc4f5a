package api

import (
	"context"
	"encoding/json"
)

type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

var wifiRules = Rules{
	"ssid":     {Required: true, Type: TypeSSID, Message: "SSID must be 1-32 characters", Sanitize: true},
	"password": {Required: true, Type: TypePassword, Message: "Password must be at least 8 characters"},
}

type WiFiService struct {
	base
}

func (s *WiFiService) Settings(ctx context.Context) Result[map[string]any] {
	return decode[map[string]any](s.get(ctx, EndpointWiFi))
}

// Update posts new credentials after validation.
func (s *WiFiService) Update(ctx context.Context, c Credentials) Result[json.RawMessage] {
	clean, err := Validate(map[string]any{"ssid": c.SSID, "password": c.Password}, wifiRules)
	if err != nil {
		return fail[json.RawMessage](err)
	}
	return s.postJSON(ctx, EndpointWiFi, clean)
}
