package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/echotherm/internal/api/models"
	"github.com/smazurov/echotherm/internal/updater"
)

// mapUpdateError converts updater error codes to HTTP errors.
func mapUpdateError(err error) error {
	switch updater.Code(err) {
	case updater.ErrCodeInvalidState:
		return huma.Error409Conflict("Update already in progress", err)
	case updater.ErrCodeNoUpdate, updater.ErrCodeNoBackup:
		return huma.Error400BadRequest(err.Error())
	case updater.ErrCodeDisabled:
		return huma.Error503ServiceUnavailable("Update service disabled", err)
	case updater.ErrCodeNotFound:
		return huma.Error404NotFound("No matching release", err)
	default:
		return huma.Error500InternalServerError("Update failed", err)
	}
}

func (s *Server) registerUpdateRoutes() {
	svc := s.options.UpdateService
	if svc == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Update status",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
		return &models.UpdateStatusResponse{Body: svc.GetStatus(ctx)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodGet,
		Path:        "/api/update/check",
		Summary:     "Check for updates",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.UpdateCheckResponse{Body: *info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply update",
		Description: "Installs the latest release and restarts the daemon.",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Update applied, restarting..."}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "rollback-update",
		Method:      http.MethodPost,
		Path:        "/api/update/rollback",
		Summary:     "Roll back update",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.Rollback(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Rollback complete, restarting..."}}, nil
	})
}
