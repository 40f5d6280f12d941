package gateway

import (
	"context"
	"log/slog"
)

// Orchestrator runs an ordered list of steps against a TaskContext. It keeps
// no per-task state and may be shared by concurrent runs once built.
type Orchestrator struct {
	name     string
	registry *Registry
	steps    []*Step
	logger   *slog.Logger
}

// New creates an empty pipeline named name that resolves skills through reg.
func New(name string, reg *Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		name:     name,
		registry: reg,
		logger:   logger.With("component", "orchestrator", "pipeline", name),
	}
}

// AddStep appends a step for skill and returns the orchestrator for chaining.
// Steps must be added before the first run.
func (o *Orchestrator) AddStep(skill string, opts ...StepOption) *Orchestrator {
	step := &Step{skill: skill}
	for _, opt := range opts {
		opt(step)
	}
	o.steps = append(o.steps, step)
	return o
}

// Name returns the pipeline name.
func (o *Orchestrator) Name() string {
	return o.name
}

// Steps returns the skill names of the pipeline in execution order.
func (o *Orchestrator) Steps() []string {
	names := make([]string, len(o.steps))
	for i, s := range o.steps {
		names[i] = s.skill
	}
	return names
}

// Run executes the pipeline from its first step.
//
// Handler failures do not produce an error: they leave tc in StatusFailed
// with the failure in its error trail. The returned error is non-nil only for
// configuration defects such as an unbound skill.
func (o *Orchestrator) Run(ctx context.Context, tc *TaskContext) error {
	return o.run(ctx, tc, 0)
}

// Resume executes the steps that follow the step for skill after. It is used
// to continue a pipeline that stopped in StatusAwaitingHuman.
//
// If after is a known skill that does not appear in this pipeline, nothing
// runs and tc is returned unchanged.
func (o *Orchestrator) Resume(ctx context.Context, tc *TaskContext, after string) error {
	if !o.registry.Has(after) {
		return &ConfigError{Skill: after, Err: ErrSkillNotFound}
	}

	for i, step := range o.steps {
		if step.skill == after {
			return o.run(ctx, tc, i+1)
		}
	}

	o.logger.Warn("resume target not in pipeline, nothing to run",
		"task_id", tc.ID(),
		"resume_after", after)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, tc *TaskContext, from int) error {
	log := o.logger.With("task_id", tc.ID())

	if tc.Status.IsTerminal() {
		log.Debug("task already finished, nothing to run", "status", tc.Status)
		return nil
	}

	for _, step := range o.steps[from:] {
		ran, err := step.execute(ctx, o.registry, tc, o.logger)
		if err != nil {
			log.Error("pipeline misconfigured", "skill", step.skill, "error", err)
			return err
		}
		if !ran {
			continue
		}

		switch tc.Status {
		case StatusFailed:
			log.Error("pipeline halted", "skill", step.skill)
			return nil
		case StatusAwaitingHuman:
			return nil
		}
	}

	// Reaching the end without a halt completes the task, including when the
	// remaining steps were all skipped.
	tc.Status = StatusCompleted
	log.Info("pipeline finished", "status", tc.Status)
	return nil
}
