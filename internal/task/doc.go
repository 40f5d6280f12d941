// Package task manages background pipeline execution. Task contexts are
// persisted through a TaskStore, queued as jobs and run by a pool of workers,
// so uploads and verifications never block HTTP request handling and
// unfinished work is recovered after a restart.
package task
