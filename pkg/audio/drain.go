package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when the data on a streaming channel is
// no longer needed — for example the synthesis chunks of an interrupted turn.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
