// Package gateway implements the skill pipeline core: a task context carried
// through an ordered list of skill steps, with suspension for human
// verification, resumption after a named skill and fail-fast error handling.
//
// Skills are discovered from SKILL.md descriptors by a Registry and bound to
// Handlers at startup. An Orchestrator holds no per-task state; everything a
// run needs lives in the TaskContext passed to Run or Resume.
package gateway
