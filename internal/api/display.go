package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/HsiangNianian/matrixpanel/internal/display"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

type DisplayService struct {
	base
	encoder display.Encoder
}

// Screen fetches the current frame.
func (s *DisplayService) Screen(ctx context.Context) Result[display.Grid] {
	res := decode[[]int](s.get(ctx, EndpointScreen))
	if !res.Success {
		return Result[display.Grid]{Error: res.Error, Err: res.Err}
	}
	g, err := display.Decode(res.Data)
	if err != nil {
		return fail[display.Grid](err)
	}
	return ok(g)
}

func (s *DisplayService) NextApp(ctx context.Context) Result[json.RawMessage] {
	return s.switchApp(ctx, EndpointNextApp)
}

func (s *DisplayService) PreviousApp(ctx context.Context) Result[json.RawMessage] {
	return s.switchApp(ctx, EndpointPreviousApp)
}

func (s *DisplayService) switchApp(ctx context.Context, endpoint string) Result[json.RawMessage] {
	raw, err := s.call(ctx, endpoint, protocol.Descriptor{Method: http.MethodPost})
	if err != nil {
		return fail[json.RawMessage](err)
	}
	return ok(raw)
}

// Record captures frames every interval until ctx is done or limit frames
// have been taken, then encodes them. A failed capture aborts the recording.
func (s *DisplayService) Record(ctx context.Context, interval time.Duration, limit int) Result[[]byte] {
	if s.encoder == nil {
		return fail[[]byte](errors.New("no animation encoder configured"))
	}
	if limit < 1 {
		limit = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var frames []display.Grid
	for len(frames) < limit {
		res := s.Screen(ctx)
		if !res.Success {
			if ctx.Err() != nil && len(frames) > 0 {
				break
			}
			return Result[[]byte]{Error: res.Error, Err: res.Err}
		}
		frames = append(frames, res.Data)
		if len(frames) == limit {
			break
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
			continue
		}
		break
	}

	data, err := s.encoder.Encode(frames, interval)
	if err != nil {
		return fail[[]byte](err)
	}
	return ok(data)
}
