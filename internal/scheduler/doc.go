// Package scheduler runs durable one-shot tasks.
//
// Every scheduled task lives in two places: a record in the durable store
// (via a Redundancy) and a local timer. On start the scheduler rebuilds its
// timers from the store; tasks that came due while nothing was running are
// delivered immediately. When a timer fires, the stored record is fetched,
// handed to the completion handler, then removed.
//
// Operations on one key are serialized. The completion handler runs while
// its key is held: it must not call Schedule or Cancel for the same key
// synchronously (dispatch to a goroutine instead).
//
// Only one Scheduler may write a given namespace at a time.
package scheduler
