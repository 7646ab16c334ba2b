// Package server exposes a configuration service over HTTP and WebSocket.
//
// # HTTP API
//
//	GET    /api/health
//	GET    /api/config
//	POST   /api/config/profile            {"name": "custom"}
//	POST   /api/config/reload
//	PUT    /api/config/entity-types/:type {"is_dynamic": true}
//	PUT    /api/config/overrides/:id      {"is_dynamic": false}
//	DELETE /api/config/overrides/:id
//
// Mutations answer {"success": bool}. Errors answer {"error": "..."} with a
// 4xx or 5xx status.
//
// # WebSocket API
//
// GET /api/ws upgrades to a WebSocket carrying JSON commands:
//
//	{"id": "1", "type": "hubcfg/update_device_override", "device_id": "42", "is_dynamic": true}
//
// Each command is answered with the same id:
//
//	{"id": "1", "type": "result", "success": true, "result": true}
//
// Failures set success to false and carry {"code", "message"} in error. The
// codes are unknown_command, invalid_format and internal_error.
//
// # Fallback
//
// When configured, GET or POST /fallback forwards device_id and value to the
// hub's set-value endpoint. See package fallback.
//
// # Usage Example
//
//	store, err := profilestore.Open("/data")
//	if err != nil {
//	    return err
//	}
//	srv, err := server.New(&server.Config{Port: 8099, Advertise: true}, store)
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// # Graceful Shutdown
//
// Start returns after SIGINT, SIGTERM or the end of its context. Open
// WebSocket connections are closed and their handlers awaited.
package server
