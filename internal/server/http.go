package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/logging"
	"github.com/muurk/dosctl/internal/version"
)

// Error is the body of every non-2xx response
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeUnavailable  = "discovery_unavailable"
	ErrCodeExhausted    = "discovery_exhausted"
	ErrCodeTimeout      = "timeout"
	ErrCodeInternal     = "internal_error"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeSessionEnded = "session_closed"
)

// DeviceView is the JSON form of a discovered device
type DeviceView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	Serial       string    `json:"serial"`
	Firmware     string    `json:"firmware"`
	Hostname     string    `json:"hostname"`
	Address      string    `json:"address"`
	Port         int       `json:"port"`
	GroupID      string    `json:"groupId"`
	Leader       bool      `json:"leader"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// GroupView is the JSON form of a group
type GroupView struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Leader  string       `json:"leader"`
	Members []DeviceView `json:"members"`
}

// NewDeviceView converts a device to its JSON form
func NewDeviceView(d discovery.Device) DeviceView {
	return DeviceView{
		ID:           string(d.ID),
		Name:         d.Info.DeviceName,
		Model:        d.Info.Model,
		Serial:       d.Info.Serial,
		Firmware:     d.Info.Release.Version,
		Hostname:     d.Hostname,
		Address:      d.Address,
		Port:         d.Port,
		GroupID:      d.GroupID(),
		Leader:       d.IsLeader(),
		DiscoveredAt: d.DiscoveredAt,
	}
}

// NewGroupView converts a group to its JSON form
func NewGroupView(g discovery.Group) GroupView {
	members := make([]DeviceView, 0, len(g.Members))
	for _, d := range g.Members {
		members = append(members, NewDeviceView(d))
	}
	return GroupView{ID: g.ID, Name: g.Name(), Leader: string(g.Leader.ID), Members: members}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":   s.backend.Ready(),
		"devices": len(s.backend.Devices()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.backend.Devices()
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, NewDeviceView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

// handleGroups answers with the settled groups. It waits for discovery under
// the session's retry policy; ?timeout= bounds the wait further.
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("invalid timeout %q", raw))
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	groups, err := s.backend.Groups(ctx)
	if err != nil {
		writeDiscoveryError(w, err)
		return
	}

	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, NewGroupView(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": views})
}

func writeDiscoveryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, discovery.ErrDiscoveryExhausted):
		writeError(w, http.StatusServiceUnavailable, ErrCodeExhausted, err.Error())
	case errors.Is(err, discovery.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeSessionEnded, err.Error())
	case errors.Is(err, discovery.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "discovery did not settle in time")
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code and payload
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}
