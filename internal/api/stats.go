package api

import (
	"context"
	"fmt"
	"math"
	"time"
)

// StatsRefreshInterval is how often live views poll /api/stats.
const StatsRefreshInterval = 5 * time.Second

// Stats is the /api/stats payload. Fields the firmware omits stay zero.
type Stats struct {
	Battery    int     `json:"bat"`
	Lux        float64 `json:"lux"`
	RAM        int64   `json:"ram"`
	UsedRAM    int64   `json:"usedRam"`
	TotalRAM   int64   `json:"totalRam"`
	UsedFlash  int64   `json:"usedFlash"`
	TotalFlash int64   `json:"totalFlash"`
	Brightness int     `json:"bri"`
	Temp       float64 `json:"temp"`
	Humidity   float64 `json:"hum"`
	Uptime     int64   `json:"uptime"`
	WiFiSignal int     `json:"wifi_signal"`
	Messages   int     `json:"messages"`
	Version    string  `json:"version"`
	App        string  `json:"app"`
	UID        string  `json:"uid"`
	Matrix     bool    `json:"matrix"`
	IPAddress  string  `json:"ip_address"`
	SSID       string  `json:"ssid"`
}

type Usage struct {
	Used       int64 `json:"used"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

type WiFiInfo struct {
	Signal   int    `json:"signal"`
	Strength int    `json:"strength"`
	Quality  string `json:"quality"`
	SSID     string `json:"ssid"`
	IP       string `json:"ip"`
}

// FormattedStats is Stats shaped for display. Device-supplied strings are
// HTML-escaped.
type FormattedStats struct {
	RAM        Usage    `json:"ram"`
	Flash      Usage    `json:"flash"`
	Uptime     int64    `json:"uptime"`
	WiFi       WiFiInfo `json:"wifi"`
	CurrentApp string   `json:"currentApp"`
}

type StatsService struct {
	base
}

func (s *StatsService) Stats(ctx context.Context) Result[Stats] {
	return decode[Stats](s.get(ctx, EndpointStats))
}

// Formatted fetches stats and derives the display view.
func (s *StatsService) Formatted(ctx context.Context) Result[FormattedStats] {
	res := s.Stats(ctx)
	if !res.Success {
		return Result[FormattedStats]{Error: res.Error, Err: res.Err}
	}
	return ok(Format(res.Data))
}

func Format(st Stats) FormattedStats {
	strength := SignalStrength(st.WiFiSignal)
	return FormattedStats{
		RAM:    Usage{Used: st.UsedRAM, Total: st.TotalRAM, Percentage: percentage(st.UsedRAM, st.TotalRAM)},
		Flash:  Usage{Used: st.UsedFlash, Total: st.TotalFlash, Percentage: percentage(st.UsedFlash, st.TotalFlash)},
		Uptime: st.Uptime,
		WiFi: WiFiInfo{
			Signal:   st.WiFiSignal,
			Strength: strength,
			Quality:  SignalQuality(strength),
			SSID:     SanitizeHTML(st.SSID),
			IP:       st.IPAddress,
		},
		CurrentApp: SanitizeHTML(st.App),
	}
}

func percentage(used, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(used) / float64(total) * 100))
}

// SignalStrength maps an RSSI in dBm onto 0..100. Zero means unknown.
func SignalStrength(dBm int) int {
	if dBm == 0 {
		return 0
	}
	return min(max(2*(dBm+100), 0), 100)
}

func SignalQuality(strength int) string {
	switch {
	case strength >= 80:
		return "excellent"
	case strength >= 60:
		return "good"
	case strength >= 40:
		return "fair"
	case strength >= 20:
		return "poor"
	}
	return "very-poor"
}

// FormatUptime renders seconds as "1d 2h 3m 4s".
func FormatUptime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := seconds / 86400
	h := (seconds % 86400) / 3600
	m := (seconds % 3600) / 60
	return fmt.Sprintf("%dd %dh %dm %ds", d, h, m, seconds%60)
}
