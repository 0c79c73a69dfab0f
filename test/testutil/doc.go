// Package testutil provides helpers for multi-context integration tests.
//
// A Cluster runs one embedded NATS server and any number of draftsync contexts
// against it, each with its own connection, lifecycle signal and emergency log,
// the way separate browser tabs or processes would share a deployment.
package testutil
