// Package panel serves the browser console as embedded assets.
//
// The console signs a user in through the REST API, opens a client
// socket and renders the DEVICES and DATA frames it receives, with one
// button per action the device kind supports. ACK frames are shown in a
// short activity log.
//
// Unknown paths fall back to index.html. Responses carry no-cache headers
// so a rebuilt binary is picked up on the next load.
package panel
