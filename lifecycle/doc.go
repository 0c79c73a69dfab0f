// Package lifecycle provides types.LifecycleSignal implementations.
//
// Manual fires the "about to unload" signal when Trigger is called, which suits tests
// and hosts with their own shutdown path. OS fires it on SIGINT or SIGTERM.
package lifecycle
