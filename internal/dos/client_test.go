package dos

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Device information as served by a Phantom I leading its group
const mockDeviceInfo = `{"availableFeatures":["nightMode","equalizer"],"deviceId":"3c1b5a9e-0001","deviceName":"Living Room L","firmwareFamily":"DOS2","groupId":"g1","installationId":"inst-1","ipControlVersion":"1","isSystemLeader":true,"model":"Phantom I","modelFamily":"phantom_i","powerRating":"108dB","release":{"buildType":"release","canonicalVersion":"2.16.1","version":"2.16.1"},"role":"FrontLeft","serial":"P1-0001","setupState":"finished","systemId":"sys-1"}`

const mockGroupState = `{"availableOperations":["play","pause","next","previous"],"metadata":{"album":"Blue","artist":"Joni Mitchell","coverArtDataPresent":false,"duration":180,"mediaType":"track","title":"River"},"muteState":"unmuted","peerDeviceName":"","playingState":"playing","source":{"deviceId":"3c1b5a9e-0001","sourceId":"src-1","type":"spotifyconnect"}}`

const mockNoSource = `{"error":{"code":"NoCurrentSource","message":"no source is playing"}}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithURL(server.URL)
}

func TestNewClient(t *testing.T) {
	client := NewClient("192.168.1.20", 80)

	if client.BaseURL != "http://192.168.1.20:80" {
		t.Errorf("BaseURL = %s, want http://192.168.1.20:80", client.BaseURL)
	}
	if client.HTTPClient == nil {
		t.Fatal("HTTPClient should not be nil")
	}
	if client.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.HTTPClient.Timeout, DefaultTimeout)
	}
}

func TestNewClient_DefaultPortAndIPv6(t *testing.T) {
	client := NewClient("fe80::1", 0)

	if client.BaseURL != "http://[fe80::1]:80" {
		t.Errorf("BaseURL = %s, want http://[fe80::1]:80", client.BaseURL)
	}
}

func TestNewClientWithURL_TrimsSlash(t *testing.T) {
	client := NewClientWithURL("http://192.168.1.20:8080/")

	if client.BaseURL != "http://192.168.1.20:8080" {
		t.Errorf("BaseURL = %s, want http://192.168.1.20:8080", client.BaseURL)
	}
}

func TestSetTimeout(t *testing.T) {
	client := NewClient("192.168.1.20", 80)
	client.SetTimeout(2 * time.Second)

	if client.HTTPClient.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", client.HTTPClient.Timeout)
	}
}

func TestDeviceInfo_Success(t *testing.T) {
	var requests int
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != PathDeviceInfo {
			t.Errorf("path = %s, want %s", r.URL.Path, PathDeviceInfo)
		}
		w.Write([]byte(mockDeviceInfo))
	})

	info, err := client.DeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("DeviceInfo() error = %v", err)
	}

	if info.DeviceID != "3c1b5a9e-0001" {
		t.Errorf("DeviceID = %s, want 3c1b5a9e-0001", info.DeviceID)
	}
	if info.GroupID != "g1" {
		t.Errorf("GroupID = %s, want g1", info.GroupID)
	}
	if !info.IsSystemLeader {
		t.Error("IsSystemLeader = false, want true")
	}
	if info.Release.CanonicalVersion != "2.16.1" {
		t.Errorf("Release.CanonicalVersion = %s, want 2.16.1", info.Release.CanonicalVersion)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want exactly 1", requests)
	}
}

func TestDeviceInfo_ServerErrorIsNotRetried(t *testing.T) {
	var requests int
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.DeviceInfo(context.Background())
	if err == nil {
		t.Fatal("DeviceInfo() should fail on HTTP 500")
	}
	if !IsHTTPError(err) {
		t.Errorf("error should be an HTTP error, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("HTTP 500 should be marked retryable")
	}
	if requests != 1 {
		t.Errorf("requests = %d, want exactly 1", requests)
	}
}

func TestDeviceInfo_NonOKStatus(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.DeviceInfo(context.Background())
	if !IsHTTPError(err) {
		t.Fatalf("DeviceInfo() error = %v, want HTTP error for 204", err)
	}
	if IsRetryable(err) {
		t.Error("HTTP 204 should not be retryable")
	}
}

func TestDeviceInfo_MalformedBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"deviceId": "abc"`))
	})

	_, err := client.DeviceInfo(context.Background())
	if !IsParseError(err) {
		t.Fatalf("DeviceInfo() error = %v, want parse error", err)
	}
}

func TestDeviceInfo_SchemaMismatch(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"deviceId": "abc", "groupId": "g1"}`))
	})

	_, err := client.DeviceInfo(context.Background())
	if !IsValidationError(err) {
		t.Fatalf("DeviceInfo() error = %v, want validation error", err)
	}
}

func TestDeviceInfo_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClientWithURL(url)
	_, err := client.DeviceInfo(context.Background())
	if !IsNetworkError(err) {
		t.Fatalf("DeviceInfo() error = %v, want network error", err)
	}
}

func TestDeviceInfo_ContextCanceled(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mockDeviceInfo))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.DeviceInfo(ctx); err == nil {
		t.Fatal("DeviceInfo() should fail with a canceled context")
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) error
		path string
	}{
		{"Mute", func(c *Client) error { return c.Mute(context.Background()) }, PathMute},
		{"Unmute", func(c *Client) error { return c.Unmute(context.Background()) }, PathUnmute},
		{"Play", func(c *Client) error { return c.Play(context.Background()) }, PathPlay},
		{"Pause", func(c *Client) error { return c.Pause(context.Background()) }, PathPause},
		{"Next", func(c *Client) error { return c.Next(context.Background()) }, PathNext},
		{"Previous", func(c *Client) error { return c.Previous(context.Background()) }, PathPrevious},
		{"VolumeUp", func(c *Client) error { return c.VolumeUp(context.Background()) }, PathVolumeUp},
		{"VolumeDown", func(c *Client) error { return c.VolumeDown(context.Background()) }, PathVolumeDown},
		{"PowerOff", func(c *Client) error { return c.PowerOff(context.Background()) }, PathPowerOff},
		{
			"SelectSource",
			func(c *Client) error {
				return c.SelectSource(context.Background(), Source{SourceID: "src-1", Type: SourceOptical})
			},
			SelectSourcePath("src-1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath string
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				w.WriteHeader(http.StatusOK)
			})

			if err := tt.call(client); err != nil {
				t.Fatalf("%s() error = %v", tt.name, err)
			}
			if gotMethod != http.MethodPost {
				t.Errorf("method = %s, want POST", gotMethod)
			}
			if gotPath != tt.path {
				t.Errorf("path = %s, want %s", gotPath, tt.path)
			}
		})
	}
}

func TestCommand_DeviceErrorDocument(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(mockNoSource))
	})

	err := client.Play(context.Background())
	if !IsDeviceError(err) {
		t.Fatalf("Play() error = %v, want device error", err)
	}
	if got := ShortMessage(err); got != "Device reported NoCurrentSource: no source is playing" {
		t.Errorf("ShortMessage() = %q", got)
	}
}

func TestSelectSource_RequiresID(t *testing.T) {
	client := NewClient("192.168.1.20", 80)

	err := client.SelectSource(context.Background(), Source{Type: SourceLine})
	if !IsValidationError(err) {
		t.Fatalf("SelectSource() error = %v, want validation error", err)
	}
}

func TestSetVolume_Clamps(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{250, 100},
	}

	for _, tt := range tests {
		var payload struct {
			Volume int `json:"volume"`
		}
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Errorf("invalid payload %q: %v", body, err)
			}
		})

		if err := client.SetVolume(context.Background(), tt.in); err != nil {
			t.Fatalf("SetVolume(%d) error = %v", tt.in, err)
		}
		if payload.Volume != tt.want {
			t.Errorf("SetVolume(%d) sent %d, want %d", tt.in, payload.Volume, tt.want)
		}
	}
}

func TestSetNightMode(t *testing.T) {
	var payload map[string]string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
	})

	if err := client.SetNightMode(context.Background(), true); err != nil {
		t.Fatalf("SetNightMode() error = %v", err)
	}
	if payload["nightMode"] != "on" {
		t.Errorf("nightMode = %q, want on", payload["nightMode"])
	}
}

func TestQueries(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathVolume:
			w.Write([]byte(`{"volume": 37}`))
		case PathNightMode:
			w.Write([]byte(`{"nightMode": "off"}`))
		case PathSources:
			w.Write([]byte(`{"sources":[{"deviceId":"d1","sourceId":"s1","type":"optical"},{"deviceId":"d1","sourceId":"s2","type":"airplay2"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	volume, err := client.Volume(ctx)
	if err != nil || volume != 37 {
		t.Errorf("Volume() = %d, %v; want 37, nil", volume, err)
	}

	night, err := client.NightMode(ctx)
	if err != nil || night {
		t.Errorf("NightMode() = %v, %v; want false, nil", night, err)
	}

	sources, err := client.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if len(sources) != 2 || sources[1].Type != SourceAirplay {
		t.Errorf("Sources() = %+v", sources)
	}
}

func TestState(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantNil     bool
		wantErr     bool
		wantPlaying bool
	}{
		{name: "playing", status: http.StatusOK, body: mockGroupState, wantPlaying: true},
		{name: "no source", status: http.StatusOK, body: mockNoSource, wantNil: true},
		{name: "no source with 404", status: http.StatusNotFound, body: mockNoSource, wantNil: true},
		{name: "bad playing state", status: http.StatusOK, body: `{"availableOperations":[],"muteState":"unmuted","peerDeviceName":"","playingState":"stopped","source":{"deviceId":"d","sourceId":"s","type":"line"}}`, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, body: "oops", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			state, err := client.State(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("State() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (state == nil) != tt.wantNil {
				t.Fatalf("State() = %+v, wantNil %v", state, tt.wantNil)
			}
			if state != nil && state.Playing() != tt.wantPlaying {
				t.Errorf("Playing() = %v, want %v", state.Playing(), tt.wantPlaying)
			}
		})
	}
}

func TestClientString(t *testing.T) {
	client := NewClient("10.0.0.5", 80)
	if got := client.String(); got != "DOS client for http://10.0.0.5:80" {
		t.Errorf("String() = %q", got)
	}
}
