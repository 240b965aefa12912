// Package server exposes a running discovery session over a local HTTP API.
//
// # Endpoints
//
//	GET /api/health         {"ready": bool, "devices": n}
//	GET /api/version        build information
//	GET /api/devices        every probed device
//	GET /api/groups         settled groups; waits under the session's retry
//	                        policy, ?timeout=2s bounds the wait
//	GET /api/groups/watch   WebSocket stream of confirmed groups
//
// Errors use a single JSON shape, {"status", "code", "message"}. Discovery
// that gives up answers 503 with code "discovery_exhausted".
//
// # Watch Stream
//
// Each confirmed group is sent as a text frame:
//
//	{"type": "group", "timestamp": "...", "group": {"id": "...", "leader": "...", "members": [...]}}
//
// A new connection first receives the groups already known. When a probe
// fails the session ends every subscription: the server sends
// {"type": "error", "error": "..."} followed by a normal close, and the client
// may reconnect. Closing the session closes streams with "going away".
//
// # Usage Example
//
//	srv := server.New(server.Config{Listen: "127.0.0.1:8780"}, session)
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// # Logging
//
// Every request is logged at info level through logging.LogHTTPRequest;
// stream lifecycle events are logged at debug level.
package server
