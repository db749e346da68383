// Package notify implements the recurring announcement scheduler: the
// persisted notification records, the file snapshot store, the pure due
// calculation, the rate-limited dispatcher and the periodic tick loop.
package notify
