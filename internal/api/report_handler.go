package api

import (
	"errors"
	"net/http"

	"github.com/tiptoro/tiptoro-api/internal/api/shared"
	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/skills"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// CreateReport handles POST /api/reports. An empty body asks for the
// default period.
func (h *TaskHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req ReportRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, shared.ErrEmptyBody) {
		respondError(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		respondError(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	tc := gateway.NewTaskContext(userID.String())
	if req.PeriodDays > 0 {
		tc.Meta.Set(skills.MetaReportPeriodDays, req.PeriodDays)
	}

	rec := task.NewRecord(gateway.PipelineReport, tc)
	if !h.dispatch(w, r, rec, rec.StartJob()) {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, newTaskResponse(rec))
}
