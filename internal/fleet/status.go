package fleet

import "time"

// DeviceStatus は1台分の状態
type DeviceStatus struct {
	ID              string   `json:"id"`
	Liveness        Liveness `json:"liveness"`
	Capturing       bool     `json:"capturing"`
	Ready           bool     `json:"ready"`
	TimestampMillis int64    `json:"timestamp_ms,omitempty"`
	Recording       bool     `json:"recording"`
	RecordingDir    string   `json:"recording_dir,omitempty"`
	RecordedFrames  int      `json:"recorded_frames"`
	HasViewer       bool     `json:"has_viewer"`
	HasRecorder     bool     `json:"has_recorder"`
}

// Status はフリート全体の状態
type Status struct {
	Liveness    Liveness       `json:"liveness"`
	Alive       bool           `json:"alive"`
	ManualStart bool           `json:"manual_start"`
	Recording   bool           `json:"recording"`
	Devices     []DeviceStatus `json:"devices"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
