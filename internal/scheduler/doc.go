// Package scheduler drives periodic sensor polls for mitemp.
//
// This package is internal to mitemp. A [Scheduler] runs one [PollFunc]
// immediately on start and then on every tick, emitting each outcome as a
// [Result] on a channel. Panics inside the poll function are recovered and
// reported as errors carrying a correlation ID, so a misbehaving sensor
// driver cannot take down the process.
//
// Users of the mitemp library should not need to interact with this package
// directly. Scheduling is configured through [mitemp.Monitor].
package scheduler
