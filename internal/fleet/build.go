package fleet

import (
	"context"
	"errors"
	"fmt"

	"depthrig/internal/camera"
	"depthrig/internal/config"
	"depthrig/internal/control"
	"depthrig/internal/frame"
	"depthrig/internal/logging"
	"depthrig/internal/recorder"
	"depthrig/internal/viewer"
)

// Deps はフリートの構築に使う外部の構成要素
type Deps struct {
	Devices *camera.DeviceFactory // nilなら組み込みドライバーのみ
	Surface viewer.Surface        // nilなら表示しない
	Sinks   recorder.SinkFactory  // nilならffmpeg。recorder.Validatorなら構築時に確認する
	Input   control.Input         // 録画の開始・停止操作
}

// Build は設定からフリートを構築する
// 録画の操作はフリートが受け取り、各コントローラーには渡さない
func Build(cfg *config.Config, deps Deps) (*Fleet, error) {
	if deps.Devices == nil {
		deps.Devices = camera.NewDeviceFactory()
	}
	logger := logging.NewLogger("fleet")

	if err := prepareSinks(cfg, &deps); err != nil {
		return nil, err
	}

	controllers := make([]*Controller, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		c, err := buildController(d, deps, logger)
		if err != nil {
			return nil, err
		}
		controllers = append(controllers, c)
	}

	manual := cfg.ManualStart()
	if manual {
		logger.Info("[System] 手動録画モード: 's' で全カメラの録画を開始、'e' で停止します")
	}
	return New(controllers, deps.Input, manual)
}

// prepareSinks は録画が有効なデバイスがある場合に出力先を確認する
// ffmpegがない場合はフレームごとの失敗ではなく起動時のエラーにする
func prepareSinks(cfg *config.Config, deps *Deps) error {
	recording := false
	for _, d := range cfg.Devices {
		recording = recording || d.RecorderEnabled
	}
	if !recording {
		return nil
	}

	if deps.Sinks == nil {
		deps.Sinks = recorder.NewFFmpegFactory()
	}
	if v, ok := deps.Sinks.(recorder.Validator); ok {
		if err := v.Validate(context.Background()); err != nil {
			return fmt.Errorf("録画の出力先を利用できません: %w", err)
		}
	}
	return nil
}

func buildController(d config.Device, deps Deps, logger logging.Logger) (*Controller, error) {
	params, err := AcquisitionParams(d)
	if err != nil {
		return nil, &camera.ConfigurationError{Field: "acquisition.channel_order", Reason: err.Error()}
	}

	device, err := deps.Devices.Create(d.Driver, d.ID)
	if err != nil {
		return nil, fmt.Errorf("カメラ %s のデバイス作成に失敗: %w", d.ID, err)
	}
	source, err := camera.NewFrameSource(d.ID, params, device)
	if err != nil {
		return nil, err
	}

	opts := Options{Logger: logger}

	if d.ViewerEnabled {
		if deps.Surface == nil {
			logger.Infof("[Camera %s] 表示面がないため表示を無効にします", camera.Suffix(d.ID))
		} else {
			v, err := viewer.New(d.ID, viewer.Config{
				ShowColor: d.Viewer.ShowColor,
				ShowDepth: d.Viewer.ShowDepth,
				FrameRate: d.Viewer.FrameRate,
				Order:     params.ChannelOrder,
			}, deps.Surface)
			if err != nil {
				return nil, errors.Join(err, source.Shutdown())
			}
			opts.Viewer = v
		}
	}

	if d.RecorderEnabled {
		opts.Recorder = recorder.New(d.ID, recorder.Config{
			SaveDir:         d.Recorder.SaveDir,
			SaveName:        d.Recorder.SaveName,
			FrameRate:       d.Recorder.FrameRate,
			IncludeOverlays: d.Recorder.IncludeOverlaysInRecording,
			Order:           params.ChannelOrder,
		}, deps.Sinks)
		opts.AutoStart = d.Recorder.AutoStartRecording
	}

	return NewController(source, opts), nil
}

// AcquisitionParams はデバイス設定を取得設定に変換する
func AcquisitionParams(d config.Device) (camera.AcquisitionParams, error) {
	order, err := frame.ParseChannelOrder(d.Acquisition.ChannelOrder)
	if err != nil {
		return camera.AcquisitionParams{}, err
	}
	return camera.AcquisitionParams{
		FrameRate:     d.Acquisition.FrameRate,
		Width:         d.Acquisition.OutputSize.Width,
		Height:        d.Acquisition.OutputSize.Height,
		AutoExposure:  d.Acquisition.AutoExposure,
		ExposureLevel: d.Acquisition.ManualExposureLevel,
		ChannelOrder:  order,
	}, nil
}
