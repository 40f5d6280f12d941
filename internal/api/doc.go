// Package api exposes the task pipelines over HTTP: registration and login,
// photo submission, human verification of recognized text, retries, reports
// and task status. Handlers translate HTTP concerns into task records and
// pipeline_run events; the runner does the work in the background.
package api
