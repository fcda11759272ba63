// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/smazurov/echotherm/internal/camera"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/updater"
	"github.com/smazurov/echotherm/internal/version"
)

type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Camera  string `json:"camera" enum:"stopped,searching,connected" doc:"Camera session state"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// MessageData carries the one-line answer the command protocol would give.
type MessageData struct {
	Message string `json:"message" example:"Screenshot saved to /home/pi/screenshot.png."`
}

type MessageResponse struct {
	Body MessageData
}

type StatusResponse struct {
	Body struct {
		camera.Status
		Line string `json:"line" doc:"Status line as returned by the STATUS command"`
	}
}

type ZoomData struct {
	Zoom     float64 `json:"zoom" example:"2" doc:"Current zoom factor"`
	ZoomRate float64 `json:"zoom_rate" example:"1" doc:"Zoom change per second, 0 jumps immediately"`
	MaxZoom  float64 `json:"max_zoom" example:"8"`
	ROI      [4]int  `json:"roi" doc:"x, y, width, height of the visible region"`
}

type ZoomResponse struct {
	Body ZoomData
}

type ZoomRequest struct {
	Body struct {
		Zoom     *float64 `json:"zoom,omitempty" minimum:"1" doc:"Target zoom factor, clamped to max_zoom"`
		ZoomRate *float64 `json:"zoom_rate,omitempty" minimum:"0"`
		MaxZoom  *float64 `json:"max_zoom,omitempty" minimum:"1"`
	}
}

type SettingsRequest struct {
	Body struct {
		Palette      *int  `json:"palette,omitempty" minimum:"0" maximum:"13" doc:"0 WHITE_HOT .. 13 USER_4"`
		ShutterMode  *int  `json:"shutter_mode,omitempty" doc:"Negative: manual, 0: automatic, positive: seconds between triggers"`
		PipelineMode *int  `json:"pipeline_mode,omitempty" minimum:"0" maximum:"2" doc:"0 LITE, 1 LEGACY, 2 PROCESSED"`
		Sharpen      *bool `json:"sharpen,omitempty"`
		FlatScene    *bool `json:"flat_scene,omitempty"`
		Gradient     *bool `json:"gradient,omitempty"`
	}
}

type PathRequest struct {
	Body struct {
		Path string `json:"path,omitempty" example:"~/captures/shot.png" doc:"Output file; empty picks a timestamped name in the home directory"`
	}
}

type CommandsRequest struct {
	Body struct {
		Batch string `json:"batch" example:"PALETTE 3|GETZOOM" doc:"Commands separated by '|', as sent over TCP"`
	}
}

type CommandResult struct {
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

type CommandsResponse struct {
	Body struct {
		Results []CommandResult `json:"results"`
	}
}

type LogsRequest struct {
	Lines  int    `query:"lines" default:"100" minimum:"0" doc:"Newest entries to return, 0 for all"`
	Module string `query:"module" doc:"Only entries from this module"`
}

type LogsResponse struct {
	Body struct {
		Entries []logging.Entry `json:"entries"`
	}
}

type LogLevelRequest struct {
	Module string `path:"module" example:"camera"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error"`
	}
}

type LEDRequest struct {
	Body struct {
		Type    string  `json:"type" example:"user" doc:"Board-specific LED type"`
		Enabled bool    `json:"enabled"`
		Pattern *string `json:"pattern,omitempty" example:"solid" doc:"solid, blink, heartbeat or a raw trigger name"`
	}
}

type LEDCapabilitiesResponse struct {
	Body struct {
		AvailableTypes    []string `json:"available_types"`
		AvailablePatterns []string `json:"available_patterns"`
	}
}

type UpdateCheckResponse struct {
	Body updater.UpdateInfo
}

type UpdateStatusResponse struct {
	Body *updater.Status
}

// LogEvent is one log entry on the log stream.
type LogEvent struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Module  string         `json:"module"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

type MetricsResponse struct {
	Body struct {
		Camera metrics.Snapshot `json:"camera"`
		Host   metrics.Host     `json:"host"`
	}
}
