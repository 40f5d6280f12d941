package gateway

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one position in a pipeline. It references a skill by name and may
// suspend the pipeline after it runs or be skipped by a condition.
type Step struct {
	skill      string
	awaitHuman bool
	condition  func(*TaskContext) bool
}

// StepOption configures a Step.
type StepOption func(*Step)

// AwaitHuman marks the step as a suspension point: after its handler
// succeeds the task waits for external verification.
func AwaitHuman() StepOption {
	return func(s *Step) {
		s.awaitHuman = true
	}
}

// When attaches a condition; the step runs only if cond returns true.
func When(cond func(*TaskContext) bool) StepOption {
	return func(s *Step) {
		s.condition = cond
	}
}

// Skill returns the name of the skill the step executes.
func (s *Step) Skill() string {
	return s.skill
}

// AwaitsHuman reports whether the step is a suspension point.
func (s *Step) AwaitsHuman() bool {
	return s.awaitHuman
}

// execute runs the step against tc and reports whether the step was
// attempted. Handler failures are recorded on tc; the returned error is
// reserved for configuration defects.
func (s *Step) execute(ctx context.Context, reg *Registry, tc *TaskContext, logger *slog.Logger) (bool, error) {
	log := logger.With("skill", s.skill, "task_id", tc.ID())

	if s.condition != nil {
		run, err := s.evaluate(tc)
		if err != nil {
			tc.AddError(s.skill, err.Error())
			log.Error("step condition failed", "error", err)
			return true, nil
		}
		if !run {
			log.Info("step skipped, condition not met")
			return false, nil
		}
	}

	h, err := reg.handler(s.skill)
	if err != nil {
		return false, err
	}

	log.Info("step starting")
	tc.Status = StatusRunning

	if err := invoke(ctx, h, tc); err != nil {
		tc.AddError(s.skill, err.Error())
		log.Error("step failed", "error", err)
		return true, nil
	}

	tc.LastSkill = s.skill
	log.Info("step done")

	if s.awaitHuman {
		tc.Status = StatusAwaitingHuman
		log.Info("step paused, awaiting human verification")
	}
	return true, nil
}

// evaluate runs the condition, converting a panic into an error.
func (s *Step) evaluate(tc *TaskContext) (run bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("condition panicked: %v", r)
		}
	}()
	return s.condition(tc), nil
}

// invoke calls the handler and blocks until it returns. A panicking handler
// is reported as an ordinary failure.
func invoke(ctx context.Context, h Handler, tc *TaskContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, tc)
}
