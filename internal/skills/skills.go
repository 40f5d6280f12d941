// Package skills implements the handlers bound to the skill descriptors
// under the skills directory.
//
// Each handler reads the fields it needs from the task context, calls its
// collaborators (language models, object storage, the question bank) and
// writes its outputs back. Handlers never change the task status; the
// orchestrator does that based on the returned error.
package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
	"github.com/tiptoro/tiptoro-api/internal/store"
)

// LLM roles used by the skills. They are keys of the llm.roles
// configuration.
const (
	RoleVisionPerception  = "vision_perception"
	RoleCognitiveAnalysis = "cognitive_analysis"
	RoleReportWriting     = "report_writing"
)

// Errors returned by Bind for missing dependencies.
var (
	ErrNilLLM       = errors.New("llm client cannot be nil")
	ErrNilQuestions = errors.New("question store cannot be nil")
	ErrNilStorage   = errors.New("object storage cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
)

// LLM is the model client the skills call.
type LLM interface {
	Call(ctx context.Context, role string, messages []llm.Message, opts ...llm.CallOption) (*llm.CompletionResponse, error)
}

// ObjectReader reads uploaded objects.
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
}

// Instrumenter wraps handlers with metrics.
type Instrumenter interface {
	Instrument(skill string, h gateway.Handler) gateway.Handler
}

// Deps are the collaborators of the skill handlers. Metrics and Now are
// optional.
type Deps struct {
	LLM       LLM
	Questions store.QuestionStore
	Storage   ObjectReader
	Logger    *slog.Logger
	Metrics   Instrumenter
	Now       func() time.Time
}

func (d Deps) validate() error {
	switch {
	case d.LLM == nil:
		return ErrNilLLM
	case d.Questions == nil:
		return ErrNilQuestions
	case d.Storage == nil:
		return ErrNilStorage
	case d.Logger == nil:
		return ErrNilLogger
	}
	return nil
}

// Handlers builds the handler of every skill, keyed by skill name.
func Handlers(deps Deps) (map[string]gateway.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger.With("component", "skills")

	handlers := map[string]gateway.Handler{
		gateway.SkillVisionPerception: &visionPerception{
			llm: deps.LLM, storage: deps.Storage, logger: log.With("skill", gateway.SkillVisionPerception),
		},
		gateway.SkillIngestAndVerify: &ingestAndVerify{
			questions: deps.Questions, logger: log.With("skill", gateway.SkillIngestAndVerify),
		},
		gateway.SkillCognitiveAnalysis: &cognitiveAnalysis{
			llm: deps.LLM, logger: log.With("skill", gateway.SkillCognitiveAnalysis),
		},
		gateway.SkillReportGeneration: &reportGeneration{
			llm: deps.LLM, questions: deps.Questions, now: deps.Now,
			logger: log.With("skill", gateway.SkillReportGeneration),
		},
	}
	if deps.Metrics != nil {
		for name, h := range handlers {
			handlers[name] = deps.Metrics.Instrument(name, h)
		}
	}
	return handlers, nil
}

// Bind binds every skill handler to reg. All skills must have been
// discovered.
func Bind(reg *gateway.Registry, deps Deps) error {
	handlers, err := Handlers(deps)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := reg.Bind(name, handlers[name]); err != nil {
			return fmt.Errorf("failed to bind skill handlers: %w", err)
		}
	}
	deps.Logger.Info("skill handlers bound", "skills", names)
	return nil
}
