package gateway

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Handler executes a skill against a task context. Returning an error marks
// the task failed; the error message is recorded in the error trail.
type Handler interface {
	Handle(ctx context.Context, tc *TaskContext) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, tc *TaskContext) error

// Handle calls f(ctx, tc).
func (f HandlerFunc) Handle(ctx context.Context, tc *TaskContext) error {
	return f(ctx, tc)
}

// SkillMeta describes a discovered skill.
type SkillMeta struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Dir         string            `json:"dir"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	handler Handler
}

// Bound reports whether a handler has been attached to the skill.
func (m SkillMeta) Bound() bool {
	return m.handler != nil
}

// skillFrontmatter is the YAML header of a SKILL.md file.
type skillFrontmatter struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Metadata    map[string]string `yaml:"metadata"`
}

var skillNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// descriptorFiles lists the accepted descriptor file names, in lookup order.
var descriptorFiles = []string{"SKILL.md", "skill.md"}

// Registry maps skill names to their metadata and bound handlers. It is
// populated once at startup and read concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*SkillMeta
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		skills: make(map[string]*SkillMeta),
		logger: logger.With("component", "skill_registry"),
	}
}

// Discover scans dir for skill descriptors and replaces the registry
// contents. Each skill lives in its own subdirectory holding a SKILL.md with
// YAML frontmatter.
func (r *Registry) Discover(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrSkillsDirNotFound, dir)
	}
	return r.DiscoverFS(os.DirFS(dir))
}

// DiscoverFS is like Discover but reads descriptors from fsys, whose root is
// the skills directory. Malformed descriptors are skipped with a warning.
func (r *Registry) DiscoverFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSkillsDirNotFound, err)
	}

	skills := make(map[string]*SkillMeta, len(entries))
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readDescriptor(fsys, entry.Name())
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err == nil {
			if _, dup := skills[meta.Name]; dup {
				err = fmt.Errorf("%w: %s", ErrDuplicateSkill, meta.Name)
			}
		}
		if err != nil {
			r.logger.Warn("skipping malformed skill descriptor",
				"dir", entry.Name(),
				"error", err)
			continue
		}
		skills[meta.Name] = meta
		order = append(order, meta.Name)
		r.logger.Debug("loaded skill", "skill", meta.Name)
	}

	r.mu.Lock()
	r.skills = skills
	r.order = order
	r.mu.Unlock()

	r.logger.Info("skill discovery finished", "skill_count", len(order))
	return nil
}

// readDescriptor parses the descriptor in dir. It returns an error wrapping
// fs.ErrNotExist when the directory holds no descriptor.
func readDescriptor(fsys fs.FS, dir string) (*SkillMeta, error) {
	var content []byte
	var err error
	for _, name := range descriptorFiles {
		content, err = fs.ReadFile(fsys, path.Join(dir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	fm, err := ParseDescriptor(string(content))
	if err != nil {
		return nil, err
	}
	return &SkillMeta{
		Name:        fm.Name,
		Description: fm.Description,
		Dir:         dir,
		Metadata:    fm.Metadata,
	}, nil
}

// ParseDescriptor extracts and validates the frontmatter of a SKILL.md file.
func ParseDescriptor(content string) (SkillMeta, error) {
	if !strings.HasPrefix(content, "---") {
		return SkillMeta{}, ErrNoFrontmatter
	}
	parts := strings.SplitN(content[3:], "---", 2)
	if len(parts) < 2 {
		return SkillMeta{}, ErrNoFrontmatter
	}

	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(parts[0]), &fm); err != nil {
		return SkillMeta{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	name := strings.TrimSpace(fm.Name)
	desc := strings.TrimSpace(fm.Description)
	switch {
	case name == "":
		return SkillMeta{}, ErrMissingName
	case !skillNamePattern.MatchString(name):
		return SkillMeta{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	case desc == "":
		return SkillMeta{}, ErrMissingDesc
	}

	return SkillMeta{Name: name, Description: desc, Metadata: fm.Metadata}, nil
}

// Bind attaches a handler to a discovered skill, replacing any previous one.
func (r *Registry) Bind(name string, h Handler) error {
	if h == nil {
		return &ConfigError{Skill: name, Err: ErrNilHandler}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.skills[name]
	if !ok {
		return &ConfigError{Skill: name, Err: ErrSkillNotFound}
	}
	meta.handler = h
	return nil
}

// Get returns a copy of the skill's metadata.
func (r *Registry) Get(name string) (SkillMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.skills[name]
	if !ok {
		return SkillMeta{}, &ConfigError{Skill: name, Err: ErrSkillNotFound}
	}
	return *meta, nil
}

// List returns all discovered skill names in discovery order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether name was discovered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[name]
	return ok
}

// handler resolves the handler bound to name.
func (r *Registry) handler(name string) (Handler, error) {
	meta, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if meta.handler == nil {
		return nil, &ConfigError{Skill: name, Err: ErrHandlerNotBound}
	}
	return meta.handler, nil
}
