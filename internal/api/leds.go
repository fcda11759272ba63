package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/echotherm/internal/api/models"
)

func (s *Server) registerLEDRoutes() {
	ctrl := s.options.LEDController
	if ctrl == nil {
		s.logger.Debug("LED controller not available, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID:   "control-led",
		Method:        http.MethodPost,
		Path:          "/api/leds",
		Summary:       "Control LED",
		Description:   "Sets an LED directly. The LED manager overrides it on the next camera or recording state change.",
		Tags:          []string{"leds"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{400, 401},
	}, func(_ context.Context, in *models.LEDRequest) (*struct{}, error) {
		pattern := ""
		if in.Body.Pattern != nil {
			pattern = *in.Body.Pattern
		}
		if err := ctrl.Set(in.Body.Type, in.Body.Enabled, pattern); err != nil {
			return nil, huma.Error400BadRequest("Failed to control LED", err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/leds/capabilities",
		Summary:     "LED capabilities",
		Tags:        []string{"leds"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LEDCapabilitiesResponse, error) {
		resp := &models.LEDCapabilitiesResponse{}
		resp.Body.AvailableTypes = ctrl.Available()
		resp.Body.AvailablePatterns = ctrl.Patterns()
		return resp, nil
	})
}
