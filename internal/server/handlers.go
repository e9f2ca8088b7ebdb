package server

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"depthrig/internal/calib"
	"depthrig/internal/camera"
	"depthrig/internal/control"
	"depthrig/internal/fleet"
)

// Handler はAPIエンドポイントの実装
type Handler struct {
	fleet    Fleet
	commands *control.Bus
}

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandResponse は録画操作の応答
type CommandResponse struct {
	Command   string    `json:"command"`
	Accepted  bool      `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

// CalibrationResponse はキャリブレーションの応答
type CalibrationResponse struct {
	ID       string       `json:"id"`
	Matrix   calib.Matrix `json:"matrix"`
	Baseline float64      `json:"baseline"`
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Register はルートを登録する
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.GET("/status", h.GetStatus)
	api.POST("/recording/start", h.StartRecording)
	api.POST("/recording/stop", h.StopRecording)
	api.GET("/devices/:id/calibration", h.GetCalibration)
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus はフリートの状態を返す
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.fleet.Status())
}

// StartRecording は全カメラの録画開始をメインループに依頼する
func (h *Handler) StartRecording(c *gin.Context) {
	h.send(c, control.CommandStartRecording)
}

// StopRecording は全カメラの録画停止をメインループに依頼する
func (h *Handler) StopRecording(c *gin.Context) {
	h.send(c, control.CommandStopRecording)
}

func (h *Handler) send(c *gin.Context, cmd control.Command) {
	if h.commands == nil || !h.commands.Send(cmd) {
		writeError(c, http.StatusServiceUnavailable, "command_rejected", "操作を受け付けられませんでした。しばらくしてから再試行してください")
		return
	}
	c.JSON(http.StatusAccepted, CommandResponse{
		Command:   cmd.String(),
		Accepted:  true,
		Timestamp: time.Now(),
	})
}

// GetCalibration はデバイスのキャリブレーションを返す
// ?format=text の場合はキャリブレーションファイルと同じ形式で返す
func (h *Handler) GetCalibration(c *gin.Context) {
	id := c.Param("id")
	k, baseline, err := h.fleet.Calibration(id)
	switch {
	case errors.Is(err, fleet.ErrUnknownDevice):
		writeError(c, http.StatusNotFound, "camera_not_found", "指定されたカメラが見つかりません")
		return
	case errors.Is(err, camera.ErrNotLaunched):
		writeError(c, http.StatusConflict, "camera_not_launched", "カメラが起動されていません")
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, "calibration_failed", err.Error())
		return
	}

	if c.Query("format") == "text" {
		var buf bytes.Buffer
		if err := calib.Write(&buf, k, baseline); err != nil {
			writeError(c, http.StatusInternalServerError, "calibration_failed", err.Error())
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
		return
	}

	c.JSON(http.StatusOK, CalibrationResponse{ID: id, Matrix: k, Baseline: baseline})
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}
