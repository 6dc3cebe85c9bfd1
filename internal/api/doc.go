// Package api provides the HTTP REST API and WebSocket server for the
// SmartThings bridge.
//
// It exposes the session's entity view, command dispatch, scene and
// mode control, and a WebSocket stream of entity changes to user
// interfaces and integrations.
//
// The server follows the same lifecycle pattern as the other
// long-lived components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
