// Package bridge turns callback-style producers into pull-based sequences.
//
// A Listener registers an emit callback with some producer and returns a
// Completion for the producer's final result. New starts the listener at once
// and returns a Bridge that consumers read with Next, Pull or range loops over
// All and Seq2:
//
//	b := bridge.New(bridge.FromChannel(ticks), bridge.WithName("ticks"))
//	defer b.Close()
//	for v := range b.All(ctx) {
//		handle(v)
//	}
//
// Values emitted while nobody is pulling are buffered (see WithBuffering), and
// pulls made before any value arrives are served in the order they were made.
// Close resolves every waiting pull as done and runs the close hooks once.
// Failures that have no caller to return to, such as a failed completion or a
// broken close hook, go to the handler set with WithOnError.
package bridge
