package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/echotherm/internal/api/models"
	"github.com/smazurov/echotherm/internal/camera"
	"github.com/smazurov/echotherm/internal/thermal"
)

// cameraError maps camera errors to HTTP errors.
func cameraError(msg string, err error) error {
	switch {
	case errors.Is(err, camera.ErrInvalidSetting):
		return huma.Error400BadRequest(msg, err)
	case errors.Is(err, camera.ErrNotConnected):
		return huma.Error409Conflict(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Server) statusResponse() *models.StatusResponse {
	resp := &models.StatusResponse{}
	resp.Body.Status = s.options.Camera.Snapshot()
	resp.Body.Line = s.options.Camera.StatusLine()
	return resp
}

func (s *Server) zoomResponse() *models.ZoomResponse {
	st := s.options.Camera.Snapshot()
	return &models.ZoomResponse{Body: models.ZoomData{
		Zoom:     st.Zoom,
		ZoomRate: st.ZoomRate,
		MaxZoom:  st.MaxZoom,
		ROI:      st.ROI,
	}}
}

func (s *Server) registerCameraRoutes() {
	cam := s.options.Camera

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Camera status",
		Description: "Session state, settings, zoom, loopback and recorder state. Reading the status line clears the last reported error.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		return s.statusResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-zoom",
		Method:      http.MethodGet,
		Path:        "/api/zoom",
		Summary:     "Get zoom",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ZoomResponse, error) {
		return s.zoomResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-zoom",
		Method:      http.MethodPut,
		Path:        "/api/zoom",
		Summary:     "Set zoom",
		Description: "Sets the zoom limit, rate and target, applied in that order.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, in *models.ZoomRequest) (*models.ZoomResponse, error) {
		if in.Body.MaxZoom != nil {
			cam.SetMaxZoom(*in.Body.MaxZoom)
		}
		if in.Body.ZoomRate != nil {
			cam.SetZoomRate(*in.Body.ZoomRate)
		}
		if in.Body.Zoom != nil {
			cam.SetZoom(*in.Body.Zoom)
		}
		return s.zoomResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "trigger-shutter",
		Method:        http.MethodPost,
		Path:          "/api/shutter",
		Summary:       "Trigger shutter",
		Description:   "Runs a flat-field correction now.",
		Tags:          []string{"camera"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 409, 500},
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		if err := cam.TriggerShutter(); err != nil {
			return nil, cameraError("Failed to trigger shutter", err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/api/settings",
		Summary:     "Update camera settings",
		Description: "Applies the given settings; omitted fields are unchanged. Settings persist across reconnects.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500},
	}, func(_ context.Context, in *models.SettingsRequest) (*models.StatusResponse, error) {
		b := in.Body
		var errs []error
		if b.Palette != nil {
			errs = append(errs, cam.SetPalette(thermal.Palette(*b.Palette)))
		}
		if b.ShutterMode != nil {
			errs = append(errs, cam.SetShutterMode(*b.ShutterMode))
		}
		if b.PipelineMode != nil {
			errs = append(errs, cam.SetPipelineMode(thermal.PipelineMode(*b.PipelineMode)))
		}
		if b.Sharpen != nil {
			errs = append(errs, cam.SetSharpen(boolInt(*b.Sharpen)))
		}
		if b.FlatScene != nil {
			errs = append(errs, cam.SetFlatScene(boolInt(*b.FlatScene)))
		}
		if b.Gradient != nil {
			errs = append(errs, cam.SetGradient(boolInt(*b.Gradient)))
		}
		if err := errors.Join(errs...); err != nil {
			return nil, cameraError("Failed to apply settings", err)
		}
		return s.statusResponse(), nil
	})
}

func (s *Server) registerCaptureRoutes() {
	cam := s.options.Camera
	message := func(m string) *models.MessageResponse {
		return &models.MessageResponse{Body: models.MessageData{Message: m}}
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "take-screenshot",
		Method:      http.MethodPost,
		Path:        "/api/screenshot",
		Summary:     "Take screenshot",
		Description: "Saves the next visual frame as an image; the format follows the file extension.",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, in *models.PathRequest) (*models.MessageResponse, error) {
		return message(cam.TakeScreenshot(in.Body.Path)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording",
		Summary:     "Start recording",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, in *models.PathRequest) (*models.MessageResponse, error) {
		return message(cam.StartRecording(in.Body.Path)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodDelete,
		Path:        "/api/recording",
		Summary:     "Stop recording",
		Description: "Drains queued frames and finalizes the file.",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.MessageResponse, error) {
		return message(cam.StopRecording()), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "take-radiometric-screenshot",
		Method:      http.MethodPost,
		Path:        "/api/radiometric",
		Summary:     "Take radiometric screenshot",
		Description: "Requests a CSV of per-pixel temperatures from the next radiometric frame. Completion is reported on the event stream.",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, in *models.PathRequest) (*models.MessageResponse, error) {
		return message(cam.TakeRadiometricScreenshot(in.Body.Path)), nil
	})
}

func (s *Server) registerCommandRoutes() {
	if s.options.Runner == nil {
		return
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "run-commands",
		Method:      http.MethodPost,
		Path:        "/api/commands",
		Summary:     "Run command batch",
		Description: "Executes a batch in the TCP wire format and returns one result per command.",
		Tags:        []string{"commands"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, in *models.CommandsRequest) (*models.CommandsResponse, error) {
		resp := &models.CommandsResponse{}
		resp.Body.Results = []models.CommandResult{}
		for _, r := range s.options.Runner.Run(in.Body.Batch, Transport) {
			cr := models.CommandResult{Command: r.Command.String()}
			if r.HasOutput {
				cr.Output = r.Output
			}
			if r.Err != nil {
				cr.Error = r.Err.Error()
			}
			resp.Body.Results = append(resp.Body.Results, cr)
		}
		return resp, nil
	})
}
