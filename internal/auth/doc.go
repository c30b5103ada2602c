// Package auth resolves the credentials presented to the gateway.
//
// Two populations authenticate:
//   - Devices present (kind, id, secret) headers. The secret is checked
//     against an Argon2id hash in the devices table. Verified credentials
//     are cached in an expirable LRU so a reconnect storm does not pay the
//     hashing cost on every attempt.
//   - Users log in with username/password and receive an HS256 JWT. A
//     client socket presents that token and is resolved to a Session that
//     carries the user's accessible device set.
//
// Access is "zero by default, grant explicitly": a user with no rows in
// user_device_access sees nothing. Admins bypass grants and see every
// provisioned device.
package auth
