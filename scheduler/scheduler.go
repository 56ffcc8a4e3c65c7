package scheduler

// Package scheduler provides scheduled job management for the signal backend.
// It handles:
// - Periodic signal warming for tracked symbols during market hours
// - Nightly archival of computed signals to MongoDB
// - Weekly cleanup of stale cached signals
//
// The main scheduler is implemented in jobs.go
