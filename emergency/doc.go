// Package emergency provides types.EmergencyLog implementations.
//
// Records are keyed emergency_save_<resourceID>_<unixMilli> and hold the full draft
// snapshot of a context that unloaded with unsaved edits. Memory keeps them in
// process; Badger persists them on local disk so they survive a crash.
package emergency
