package api

import (
	"net/http"

	"github.com/tiptoro/tiptoro-api/internal/api/shared"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
)

// SkillCatalog lists registered skills.
type SkillCatalog interface {
	List() []string
	Get(name string) (gateway.SkillMeta, error)
}

// SkillHandler serves the skill registry.
type SkillHandler struct {
	skills SkillCatalog
}

// NewSkillHandler creates a SkillHandler.
func NewSkillHandler(skills SkillCatalog) *SkillHandler {
	return &SkillHandler{skills: skills}
}

// ListSkills handles GET /api/skills.
func (h *SkillHandler) ListSkills(w http.ResponseWriter, r *http.Request) {
	names := h.skills.List()
	out := make([]SkillResponse, 0, len(names))
	for _, name := range names {
		meta, err := h.skills.Get(name)
		if err != nil {
			// Rediscovery can drop a skill between List and Get.
			continue
		}
		out = append(out, SkillResponse{
			Name:        meta.Name,
			Description: meta.Description,
			Metadata:    meta.Metadata,
			Bound:       meta.Bound(),
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}
