// Package store keeps the latest sensor readings in memory and fans them
// out to subscribers.
//
// This package is internal to mitemp. It backs the HTTP API and the
// Server-Sent Events stream of the dashboard.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Reading]: Storage representation of one poll of the sensor
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the poll loop). Nothing
// is persisted across restarts.
package store
