package gateway

import (
	"errors"
	"fmt"
)

// Configuration errors. These indicate wiring bugs and are returned to the
// caller of Run or Resume; they never appear in a task's error trail.
var (
	// ErrSkillNotFound is returned when a skill name was never discovered.
	ErrSkillNotFound = errors.New("skill not found")

	// ErrHandlerNotBound is returned when a discovered skill has no handler.
	ErrHandlerNotBound = errors.New("skill handler not bound")

	// ErrSkillsDirNotFound is returned by Discover when the descriptor
	// directory does not exist.
	ErrSkillsDirNotFound = errors.New("skills directory not found")

	// ErrNilHandler is returned when binding a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// Descriptor parsing errors. A descriptor failing with one of these is
// skipped during discovery.
var (
	ErrNoFrontmatter  = errors.New("SKILL.md has no frontmatter")
	ErrParseFailed    = errors.New("failed to parse SKILL.md")
	ErrMissingName    = errors.New("missing required field: name")
	ErrMissingDesc    = errors.New("missing required field: description")
	ErrInvalidName    = errors.New("invalid skill name")
	ErrDuplicateSkill = errors.New("duplicate skill name")
)

// ConfigError reports a pipeline wiring defect for a specific skill.
type ConfigError struct {
	Skill string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("skill %q: %v", e.Skill, e.Err)
}

// Unwrap supports errors.Is and errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
