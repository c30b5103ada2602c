// Package device describes the kinds of device the gateway accepts and
// stores their provisioned credentials.
//
// A device kind is a closed set (Alarmclock, Watermixer). Each kind carries
// a Behaviour: the actions it recognises and the parameters each action
// requires. The gateway consults the Behaviour before forwarding a client
// request so an unrecognised action never reaches the device.
//
// Credentials (id, kind, Argon2id hash of the secret) live in the devices
// table and are managed through Repository.
package device
