// Package events decouples request handling from background work. The HTTP
// layer emits TaskRequestEvents; subscribers such as the task runner's event
// handler turn them into queued jobs without the API importing the runner.
package events
