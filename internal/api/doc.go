// Package api is the HTTP surface of the gateway.
//
// It serves a small REST API next to the two WebSocket endpoints:
//
//	GET  /api/v1/health                  liveness, version, connection counts
//	GET  /api/v1/metrics                 Prometheus exposition
//	POST /api/v1/auth/login              username/password to bearer token
//	GET  /api/v1/auth/me                 the caller's session
//	GET  /api/v1/devices                 live devices the caller may see
//	GET  /api/v1/devices/{id}/history    retained telemetry of one device
//	GET  /api/v1/devices/ws              device socket (header credentials)
//	GET  /api/v1/ws                      client socket (bearer token)
//	GET  /panel/                         browser console
//
// REST routes other than health, metrics and login require a bearer token.
// The socket endpoints authenticate inside the gateway, which must answer
// 400 or 401 before upgrading.
//
// The server follows the same lifecycle as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
