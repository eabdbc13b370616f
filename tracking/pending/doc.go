// Package pending buffers events for channels whose entry point is not loaded yet.
//
// Items are kept in memory, FIFO per channel. Enqueue starts a drain process
// when none is running: it drains immediately, again after every registry
// install notification, and on a backstop ticker until the queue empties.
// An item that is not delivered within the drain budget is dropped. Each item
// gets at most one delivery attempt.
package pending
