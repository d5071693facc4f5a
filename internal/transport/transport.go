// Package transport is the single call path used by the API façade. It
// picks the bridge in embedded mode and the HTTP client otherwise.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/HsiangNianian/matrixpanel/internal/baseurl"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

// Doer is the direct HTTP path (httpclient.Client).
type Doer interface {
	Do(ctx context.Context, d protocol.Descriptor) (*http.Response, error)
}

// Sender is the embedded path (bridge.Bridge).
type Sender interface {
	Send(ctx context.Context, req protocol.BridgeRequest) (json.RawMessage, error)
}

// OriginSource yields the resolved device origin (baseurl.Resolver).
type OriginSource interface {
	Get(ctx context.Context) string
}

var errInvalidResponse = errors.New("invalid response received from device")

type Options struct {
	Embedded     bool
	MeasureCalls bool
	LogErrors    bool
}

type Transport struct {
	origin OriginSource
	direct Doer
	bridge Sender
	opts   Options
}

func New(origin OriginSource, direct Doer, bridge Sender, opts Options) *Transport {
	return &Transport{origin: origin, direct: direct, bridge: bridge, opts: opts}
}

func (t *Transport) Embedded() bool { return t.opts.Embedded }

// Call returns the raw data for d. Errors are returned exactly as the lower
// layer classified them.
func (t *Transport) Call(ctx context.Context, d protocol.Descriptor) (json.RawMessage, error) {
	start := time.Now()

	var (
		data json.RawMessage
		err  error
	)
	if t.opts.Embedded {
		data, err = t.callBridge(ctx, d)
	} else {
		data, err = t.callDirect(ctx, d)
	}

	if err != nil {
		if t.opts.LogErrors {
			log.Printf("[transport] call failed: method=%s url=%s err=%v", d.MethodOrGet(), d.URL, err)
		}
		return nil, err
	}
	if t.opts.MeasureCalls {
		log.Printf("[transport] api call: url=%s took=%s", d.URL, time.Since(start).Round(10*time.Microsecond))
	}
	return data, nil
}

func (t *Transport) callBridge(ctx context.Context, d protocol.Descriptor) (json.RawMessage, error) {
	if t.bridge == nil {
		return nil, fmt.Errorf("embedded mode without a bridge")
	}
	return t.bridge.Send(ctx, protocol.BridgeRequest{
		URL:     baseurl.Relative(d.URL, t.origin.Get(ctx)),
		Method:  d.MethodOrGet(),
		Body:    string(d.Body),
		IsImage: d.IsImage,
	})
}

func (t *Transport) callDirect(ctx context.Context, d protocol.Descriptor) (json.RawMessage, error) {
	resp, err := t.direct.Do(ctx, d)
	if err != nil {
		return nil, err
	}
	return Normalize(resp, d)
}

// Normalize reads and closes resp. Mutating calls report {"success":true}
// because the device answers them without a usable body.
func Normalize(resp *http.Response, d protocol.Descriptor) (json.RawMessage, error) {
	defer resp.Body.Close()
	if d.Mutating() {
		_, _ = io.Copy(io.Discard, resp.Body)
		return protocol.MutationOK, nil
	}
	return DecodeBody(resp, d.IsImage)
}

// DecodeBody turns a device response into bridge-compatible data: JSON is
// passed through, images become a data URL, anything else a JSON string.
func DecodeBody(resp *http.Response, isImage bool) (json.RawMessage, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case isImage:
		if mediaType == "" {
			mediaType = http.DetectContentType(body)
		}
		return json.Marshal("data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(body))
	case mediaType == "application/json":
		if len(body) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(body) {
			return nil, errInvalidResponse
		}
		return body, nil
	default:
		return json.Marshal(string(body))
	}
}
