package mockdevice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dosctl/internal/dos"
	"github.com/muurk/dosctl/internal/logging"
)

// VolumeStep is how much volumeUp and volumeDown change the level
const VolumeStep = 5

// Error codes the mock returns in DOS error documents
const (
	CodeNoCurrentSource  = "NoCurrentSource"
	CodeUnknownSource    = "UnknownSource"
	CodeInvalidArgument  = "InvalidArgument"
	CodeSystemPoweredOff = "SystemPoweredOff"
)

// NewInfo builds a plausible device information document
func NewInfo(id, name, groupID string, leader bool) dos.DeviceInformation {
	return dos.DeviceInformation{
		AvailableFeatures: []string{"nightMode", "equalizer"},
		DeviceID:          id,
		DeviceName:        name,
		FirmwareFamily:    "DOS2",
		GroupID:           groupID,
		InstallationID:    "mock-installation",
		IPControlVersion:  "1",
		IsSystemLeader:    leader,
		Model:             "Phantom I",
		ModelFamily:       "phantom_i",
		PowerRating:       "108dB",
		Release:           dos.Release{BuildType: "release", CanonicalVersion: "2.16.1.0", Version: "2.16.1"},
		Role:              "Mono",
		Serial:            "MOCK-" + id,
		SetupState:        "finished",
		SystemID:          "system-" + groupID,
	}
}

// DefaultSources are the inputs a new mock device offers
func DefaultSources(deviceID string) []dos.Source {
	return []dos.Source{
		{DeviceID: deviceID, SourceID: "src-spotify", Type: dos.SourceSpotifyConnect},
		{DeviceID: deviceID, SourceID: "src-airplay", Type: dos.SourceAirplay},
		{DeviceID: deviceID, SourceID: "src-optical", Type: dos.SourceOptical},
	}
}

// Device emulates the IP control API of one DOS speaker. It is an
// http.Handler and is safe for concurrent use.
type Device struct {
	mu        sync.Mutex
	info      dos.DeviceInformation
	volume    int
	nightMode bool
	muted     bool
	playing   bool
	poweredOn bool
	sources   []dos.Source
	current   *dos.Source
	metadata  *dos.TrackMetadata
	failures  map[string]int
	requests  map[string]int

	mux    *http.ServeMux
	logger *zap.Logger
}

// New creates a powered-on device with no active source
func New(info dos.DeviceInformation) *Device {
	d := &Device{
		info:      info.Clone(),
		volume:    30,
		poweredOn: true,
		sources:   DefaultSources(info.DeviceID),
		failures:  make(map[string]int),
		requests:  make(map[string]int),
		logger:    logging.Named("mockdevice"),
	}
	d.mux = d.routes()
	return d
}

func (d *Device) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+dos.PathDeviceInfo, d.handleInfo)
	mux.HandleFunc("GET "+dos.PathVolume, d.handleGetVolume)
	mux.HandleFunc("POST "+dos.PathVolume, d.handleSetVolume)
	mux.HandleFunc("GET "+dos.PathNightMode, d.handleGetNightMode)
	mux.HandleFunc("POST "+dos.PathNightMode, d.handleSetNightMode)
	mux.HandleFunc("GET "+dos.PathSources, d.handleSources)
	mux.HandleFunc("GET "+dos.PathCurrentSource, d.handleCurrentSource)
	mux.HandleFunc("POST "+dos.SelectSourcePath("{sourceID}"), d.handleSelectSource)

	mux.HandleFunc("POST "+dos.PathVolumeUp, d.command(func() { d.volume = dos.ClampVolume(d.volume + VolumeStep) }, false))
	mux.HandleFunc("POST "+dos.PathVolumeDown, d.command(func() { d.volume = dos.ClampVolume(d.volume - VolumeStep) }, false))
	mux.HandleFunc("POST "+dos.PathMute, d.command(func() { d.muted = true }, true))
	mux.HandleFunc("POST "+dos.PathUnmute, d.command(func() { d.muted = false }, true))
	mux.HandleFunc("POST "+dos.PathPlay, d.command(func() { d.playing = true }, true))
	mux.HandleFunc("POST "+dos.PathPause, d.command(func() { d.playing = false }, true))
	mux.HandleFunc("POST "+dos.PathNext, d.command(func() { d.metadata = nextTrack(d.metadata, 1) }, true))
	mux.HandleFunc("POST "+dos.PathPrevious, d.command(func() { d.metadata = nextTrack(d.metadata, -1) }, true))
	mux.HandleFunc("POST "+dos.PathPowerOff, d.command(func() {
		d.poweredOn = false
		d.playing = false
		d.current = nil
		d.metadata = nil
	}, false))

	return mux
}

// ServeHTTP implements http.Handler
func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.requests[r.URL.Path]++
	status, failing := d.failures[r.URL.Path]
	d.mu.Unlock()

	d.logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))

	if failing {
		w.WriteHeader(status)
		return
	}
	d.mux.ServeHTTP(w, r)
}

// FailPath makes every request to path answer with status and no body.
// A zero status clears the failure.
func (d *Device) FailPath(path string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status == 0 {
		delete(d.failures, path)
		return
	}
	d.failures[path] = status
}

// Requests returns how many requests path has received
func (d *Device) Requests(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[path]
}

// Info returns the device information document
func (d *Device) Info() dos.DeviceInformation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info.Clone()
}

// SetInfo replaces the device information document, e.g. to move the device
// to another group
func (d *Device) SetInfo(info dos.DeviceInformation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = info.Clone()
}

// Snapshot is the observable playback state of a mock device
type Snapshot struct {
	Volume    int
	NightMode bool
	Muted     bool
	Playing   bool
	PoweredOn bool
	SourceID  string
	Track     string
}

// Snapshot returns the current state
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Volume:    d.volume,
		NightMode: d.nightMode,
		Muted:     d.muted,
		Playing:   d.playing,
		PoweredOn: d.poweredOn,
	}
	if d.current != nil {
		s.SourceID = d.current.SourceID
	}
	if d.metadata != nil {
		s.Track = d.metadata.Title
	}
	return s
}

// ListenAndServe serves the device on addr until ctx is done
func (d *Device) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return d.Serve(ctx, listener)
}

// Serve serves the device on an existing listener until ctx is done
func (d *Device) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: d, ReadHeaderTimeout: 5 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	d.logger.Info("Mock device listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("device_id", d.Info().DeviceID),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (d *Device) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Info())
}

func (d *Device) handleGetVolume(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"volume": d.volume})
}

func (d *Device) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volume *int `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Volume == nil {
		writeDOSError(w, http.StatusBadRequest, CodeInvalidArgument, "volume must be a number")
		return
	}
	if *body.Volume < 0 || *body.Volume > 100 {
		writeDOSError(w, http.StatusBadRequest, CodeInvalidArgument, "volume must be between 0 and 100")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.poweredOn {
		writeDOSError(w, http.StatusConflict, CodeSystemPoweredOff, "system is powered off")
		return
	}
	d.volume = *body.Volume
	w.WriteHeader(http.StatusOK)
}

func (d *Device) handleGetNightMode(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"nightMode": onOff(d.nightMode)})
}

func (d *Device) handleSetNightMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NightMode string `json:"nightMode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || (body.NightMode != "on" && body.NightMode != "off") {
		writeDOSError(w, http.StatusBadRequest, CodeInvalidArgument, `nightMode must be "on" or "off"`)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nightMode = body.NightMode == "on"
	w.WriteHeader(http.StatusOK)
}

func (d *Device) handleSources(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string][]dos.Source{"sources": d.sources})
}

func (d *Device) handleCurrentSource(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		writeDOSError(w, http.StatusNotFound, CodeNoCurrentSource, "no source is currently playing")
		return
	}

	playing := "paused"
	if d.playing {
		playing = "playing"
	}
	muted := "unmuted"
	if d.muted {
		muted = "muted"
	}
	writeJSON(w, http.StatusOK, dos.GroupState{
		AvailableOperations: []string{dos.OperationPlay, dos.OperationPause, dos.OperationNext, dos.OperationPrevious},
		Metadata:            d.metadata,
		MuteState:           muted,
		PeerDeviceName:      "",
		PlayingState:        playing,
		Source:              *d.current,
	})
}

func (d *Device) handleSelectSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sourceID")

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.sources {
		if d.sources[i].SourceID == id {
			src := d.sources[i]
			d.current = &src
			d.poweredOn = true
			d.playing = true
			d.metadata = nextTrack(nil, 0)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	writeDOSError(w, http.StatusNotFound, CodeUnknownSource, fmt.Sprintf("no source %q", id))
}

// command wraps a state change. Commands that act on playback need an
// active source.
func (d *Device) command(apply func(), needsSource bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if needsSource && d.current == nil {
			writeDOSError(w, http.StatusConflict, CodeNoCurrentSource, "no source is currently playing")
			return
		}
		apply()
		w.WriteHeader(http.StatusOK)
	}
}

var playlist = []dos.TrackMetadata{
	{Title: "Mercury", Artist: "Sleeping at Last", Album: "Atlas: Space", Duration: 236, MediaType: "track"},
	{Title: "Teardrop", Artist: "Massive Attack", Album: "Mezzanine", Duration: 330, MediaType: "track"},
	{Title: "Svefn-g-englar", Artist: "Sigur Rós", Album: "Ágætis byrjun", Duration: 604, MediaType: "track"},
}

// nextTrack moves through the playlist by step, wrapping around
func nextTrack(current *dos.TrackMetadata, step int) *dos.TrackMetadata {
	index := 0
	if current != nil {
		for i := range playlist {
			if playlist[i].Title == current.Title {
				index = i
			}
		}
	}
	index = ((index+step)%len(playlist) + len(playlist)) % len(playlist)
	track := playlist[index]
	return &track
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDOSError writes the {"error": {...}} document real devices return
func writeDOSError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]dos.ErrorBody{
		"error": {Code: code, Message: message},
	})
}
