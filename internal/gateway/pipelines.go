package gateway

import (
	"log/slog"
	"sort"
)

// Skill names used by the built-in pipelines. Each has a descriptor under
// the skills directory.
const (
	SkillVisionPerception  = "vision-perception"
	SkillIngestAndVerify   = "ingest-and-verify"
	SkillCognitiveAnalysis = "cognitive-analysis"
	SkillReportGeneration  = "report-generation"
)

// Pipeline names.
const (
	PipelineDefault = "default"
	PipelineReport  = "report"
)

// NewDefaultPipeline builds the mistake processing pipeline:
//
//	vision-perception -> (await human) -> ingest-and-verify -> cognitive-analysis
func NewDefaultPipeline(reg *Registry, logger *slog.Logger) *Orchestrator {
	return New(PipelineDefault, reg, logger).
		AddStep(SkillVisionPerception, AwaitHuman()).
		AddStep(SkillIngestAndVerify).
		AddStep(SkillCognitiveAnalysis)
}

// NewReportPipeline builds the single-step learning report pipeline.
func NewReportPipeline(reg *Registry, logger *slog.Logger) *Orchestrator {
	return New(PipelineReport, reg, logger).
		AddStep(SkillReportGeneration)
}

// Catalog looks up pipelines by name.
type Catalog map[string]*Orchestrator

// NewCatalog returns a catalog holding the built-in pipelines.
func NewCatalog(reg *Registry, logger *slog.Logger) Catalog {
	return NewCatalogOf(
		NewDefaultPipeline(reg, logger),
		NewReportPipeline(reg, logger),
	)
}

// NewCatalogOf builds a catalog from the given pipelines.
func NewCatalogOf(pipelines ...*Orchestrator) Catalog {
	c := make(Catalog, len(pipelines))
	for _, p := range pipelines {
		c[p.Name()] = p
	}
	return c
}

// Pipeline returns the pipeline registered under name.
func (c Catalog) Pipeline(name string) (*Orchestrator, bool) {
	p, ok := c[name]
	return p, ok
}

// Names returns the sorted pipeline names.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
