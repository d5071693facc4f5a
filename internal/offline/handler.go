package offline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/HsiangNianian/matrixpanel/internal/baseurl"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

// ControlPath receives control messages from the panel.
const ControlPath = "/_worker/message"

var (
	errUnknownControl = errors.New("unknown control message")
	errInvalidIP      = errors.New("invalid IP address")
)

func (w *Worker) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(ControlPath, w.handleControl).Methods(http.MethodPost)
	r.PathPrefix("/").HandlerFunc(w.serveProxy)
	return r
}

func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.router.ServeHTTP(rw, r)
}

// serveProxy caches GETs once the worker is active. Everything else goes
// straight upstream.
func (w *Worker) serveProxy(rw http.ResponseWriter, r *http.Request) {
	target := w.targetURL(r)
	if r.Method != http.MethodGet || w.State() != StateActivated {
		w.forward(rw, r, target)
		return
	}
	writeEntry(rw, w.Fetch(r.Context(), target, r.URL.Path, r.Header.Get("Accept")))
}

func (w *Worker) targetURL(r *http.Request) string {
	ctx := r.Context()
	origin := w.assetOrigin(ctx)
	if IsDevicePath(r.URL.Path) {
		origin = w.device.Get(ctx)
	}
	return origin + r.URL.RequestURI()
}

func (w *Worker) forward(rw http.ResponseWriter, r *http.Request, target string) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()
	req.Header.Del("Accept-Encoding")

	resp, err := w.client.Do(req)
	if err != nil {
		log.Printf("offline forward failed: method=%s url=%s err=%v", r.Method, target, err)
		http.Error(rw, "Network error", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(rw.Header(), resp.Header)
	rw.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(rw, resp.Body); err != nil {
		log.Printf("offline forward copy failed: url=%s err=%v", target, err)
	}
}

func writeEntry(rw http.ResponseWriter, e Entry) {
	copyHeader(rw.Header(), e.Header)
	rw.Header().Set("Content-Length", strconv.Itoa(len(e.Body)))
	rw.WriteHeader(e.Status)
	_, _ = rw.Write(e.Body)
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		if k == "Content-Length" || k == "Transfer-Encoding" || k == "Connection" {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func (w *Worker) handleControl(rw http.ResponseWriter, r *http.Request) {
	var msg protocol.ControlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeReply(rw, http.StatusBadRequest, protocol.ControlReply{Error: err.Error()})
		return
	}

	reply, err := w.Control(r.Context(), msg)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errUnknownControl) || errors.Is(err, errInvalidIP) {
			status = http.StatusBadRequest
		}
		writeReply(rw, status, protocol.ControlReply{Error: err.Error()})
		return
	}
	writeReply(rw, http.StatusOK, reply)
}

// Control applies one control message.
func (w *Worker) Control(ctx context.Context, msg protocol.ControlMessage) (protocol.ControlReply, error) {
	log.Printf("offline control: type=%s", msg.Type)

	switch msg.Type {
	case protocol.ControlSkipWaiting:
		if err := w.SkipWaiting(ctx); err != nil {
			return protocol.ControlReply{}, err
		}
		return protocol.ControlReply{OK: true}, nil
	case protocol.ControlGetVersion:
		return protocol.ControlReply{OK: true, Version: w.VersionName()}, nil
	case protocol.ControlClearCache:
		if err := w.ClearCache(ctx); err != nil {
			return protocol.ControlReply{}, err
		}
		return protocol.ControlReply{OK: true}, nil
	case protocol.ControlSetDeviceIP:
		if !baseurl.ValidIPv4(msg.IP) {
			return protocol.ControlReply{}, errInvalidIP
		}
		if err := w.device.SetHost(ctx, msg.IP); err != nil {
			return protocol.ControlReply{}, err
		}
		return protocol.ControlReply{OK: true}, nil
	}
	return protocol.ControlReply{}, errUnknownControl
}

func writeReply(rw http.ResponseWriter, status int, reply protocol.ControlReply) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(reply)
}
