// Package activity tracks in-flight requests and derives a two-state status from them.
//
// A Registry owns the set of request IDs that have been registered and not yet
// deregistered. Every Register or Deregister recomputes the status (idle when the
// set is empty, running otherwise) and publishes it to all subscribers, even when
// the value did not change. Consumers that drive animations rely on every event.
//
// # Subscribing
//
// Subscribe returns a Subscription whose channel first yields the current status
// and then every later status in publish order:
//
//	reg := activity.New(activity.WithLogger(logger))
//	sub := reg.Subscribe()
//	defer sub.Close()
//
//	go func() {
//	    for status := range sub.Updates() {
//	        indicator.Show(status == activity.StatusRunning)
//	    }
//	}()
//
// Each subscription buffers its own values and is drained by its own goroutine,
// so a slow consumer never blocks Register or Deregister, and consumers may call
// back into the registry.
//
// # Cleanup
//
// ReleaseFunc returns a once-only closure that deregisters an ID. The closure only
// holds a weak reference to the registry, which makes it suitable for callbacks
// that may outlive the registry, such as context.AfterFunc.
package activity
