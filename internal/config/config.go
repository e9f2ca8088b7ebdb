// Package config は設定ファイルの読み込みと検証を行う
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"depthrig/internal/frame"
)

// 既定値
const (
	DefaultFrameRate         = 30
	DefaultWidth             = 1280
	DefaultHeight            = 720
	DefaultExposureLevel     = 50
	DefaultViewerFrameRate   = 30
	DefaultRecorderFrameRate = 10
	DefaultSaveDir           = "./recordings"
	DefaultLoopRate          = 30

	// SaveNameLayout はセッション名を省略したときの時刻書式
	SaveNameLayout = "20060102_150405"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Loop    LoopConfig   `yaml:"loop"`
	Log     LogConfig    `yaml:"log"`
	Devices Devices      `yaml:"devices"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // 停止待ちの上限
}

// LoopConfig はメインループの設定
type LoopConfig struct {
	Rate     int    `yaml:"rate"`      // 1秒あたりの更新回数
	CalibDir string `yaml:"calib_dir"` // 起動時にキャリブレーションを書き出す先（空なら書き出さない）
}

// LogConfig はログの設定
type LogConfig struct {
	Level string `yaml:"level"` // error / warn / info / debug / trace
}

// Device は1台分の設定。読み込み後は変更しない
type Device struct {
	ID     string `yaml:"-"`      // シリアル番号（devicesのキー）
	Driver string `yaml:"driver"` // デバイスドライバー名

	Acquisition Acquisition `yaml:"acquisition"`

	ViewerEnabled bool   `yaml:"viewer_enabled"`
	Viewer        Viewer `yaml:"viewer"`

	RecorderEnabled bool     `yaml:"recorder_enabled"`
	Recorder        Recorder `yaml:"recorder"`
}

// Acquisition は取得設定
type Acquisition struct {
	FrameRate           int    `yaml:"frame_rate"`
	OutputSize          Size   `yaml:"output_size"`
	AutoExposure        bool   `yaml:"auto_exposure"`
	ManualExposureLevel int    `yaml:"manual_exposure_level"` // 1..100
	ChannelOrder        string `yaml:"channel_order"`         // rgb / bgr
}

// Viewer は表示の設定
type Viewer struct {
	ShowColor bool `yaml:"show_color"`
	ShowDepth bool `yaml:"show_depth"`
	FrameRate int  `yaml:"frame_rate"`
}

// Recorder は録画の設定
type Recorder struct {
	SaveDir                    string `yaml:"save_dir"`
	SaveName                   string `yaml:"save_name"`
	FrameRate                  int    `yaml:"frame_rate"`
	IncludeOverlaysInRecording bool   `yaml:"include_overlays_in_recording"`
	AutoStartRecording         bool   `yaml:"auto_start_recording"`
}

// Size は [幅, 高さ] で書く画像サイズ
type Size struct {
	Width  int
	Height int
}

// UnmarshalYAML は [w, h] 形式を読み込む
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var pair []int
	if err := node.Decode(&pair); err != nil {
		return fmt.Errorf("output_size は [幅, 高さ] で指定してください (行 %d): %w", node.Line, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("output_size は [幅, 高さ] で指定してください (行 %d)", node.Line)
	}
	s.Width, s.Height = pair[0], pair[1]
	return nil
}

// MarshalYAML は [w, h] 形式で書き出す
func (s Size) MarshalYAML() (interface{}, error) {
	return []int{s.Width, s.Height}, nil
}

// Devices は設定ファイルに書かれた順序を保つデバイス一覧
type Devices []Device

// UnmarshalYAML はシリアル番号をキーとするマッピングを順序どおりに読み込む
// 書かれていない項目は既定値のまま
func (d *Devices) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("devices はシリアル番号をキーとするマッピングで指定してください (行 %d)", node.Line)
	}

	seen := make(map[string]bool)
	devices := make(Devices, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		if seen[id] {
			return fmt.Errorf("デバイス %s が重複しています (行 %d)", id, node.Content[i].Line)
		}
		seen[id] = true

		device := DefaultDevice(id)
		if err := node.Content[i+1].Decode(&device); err != nil {
			return fmt.Errorf("デバイス %s の設定が不正です: %w", id, err)
		}
		device.ID = id
		devices = append(devices, device)
	}

	*d = devices
	return nil
}

// MarshalYAML は順序を保ったマッピングとして書き出す
func (d Devices) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, device := range d {
		value := &yaml.Node{}
		if err := value.Encode(device); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: device.ID, Tag: "!!str"}, value)
	}
	return node, nil
}

// Find はIDでデバイスを探す
func (d Devices) Find(id string) (Device, bool) {
	for _, device := range d {
		if device.ID == id {
			return device, true
		}
	}
	return Device{}, false
}

// DefaultDevice は既定値で埋めたデバイス設定を返す
func DefaultDevice(id string) Device {
	return Device{
		ID: id,
		Acquisition: Acquisition{
			FrameRate:           DefaultFrameRate,
			OutputSize:          Size{Width: DefaultWidth, Height: DefaultHeight},
			AutoExposure:        true,
			ManualExposureLevel: DefaultExposureLevel,
			ChannelOrder:        string(frame.OrderRGB),
		},
		ViewerEnabled: true,
		Viewer: Viewer{
			ShowColor: true,
			ShowDepth: false,
			FrameRate: DefaultViewerFrameRate,
		},
		RecorderEnabled: false,
		Recorder: Recorder{
			SaveDir:            DefaultSaveDir,
			FrameRate:          DefaultRecorderFrameRate,
			AutoStartRecording: true,
		},
	}
}

// Default は設定ファイルがない場合の設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Loop: LoopConfig{
			Rate: DefaultLoopRate,
		},
		Log: LogConfig{
			Level: "info",
		},
		Devices: Devices{
			withDriver(DefaultDevice("synthetic-001"), "synthetic"),
		},
	}
}

func withDriver(d Device, driver string) Device {
	d.Driver = driver
	return d
}

// Load は設定を読み込む
// path が空の場合は DEPTHRIG_CONFIG を参照し、それも空なら既定値を使う
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DEPTHRIG_CONFIG")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	// 環境変数で上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Log.Level = getEnvOrDefault("DEPTHRIG_LOG_LEVEL", cfg.Log.Level)

	cfg.fillSaveNames(time.Now())

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Parse はYAMLをcfgに重ねて読み込む
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	return nil
}

// fillSaveNames はセッション名が省略されたデバイスに共通の開始時刻を設定する
func (c *Config) fillSaveNames(now time.Time) {
	name := now.Format(SaveNameLayout)
	for i := range c.Devices {
		if c.Devices[i].Recorder.SaveName == "" {
			c.Devices[i].Recorder.SaveName = name
		}
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}
	if c.Loop.Rate < 0 {
		errs = append(errs, fmt.Errorf("無効なループレート: %d", c.Loop.Rate))
	}

	if len(c.Devices) == 0 {
		errs = append(errs, errors.New("デバイスが設定されていません"))
	}
	for _, d := range c.Devices {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Validate はデバイス設定の妥当性を検証する
func (d Device) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("デバイス %q: "+format, append([]interface{}{d.ID}, args...)...))
	}

	if d.ID == "" {
		invalid("シリアル番号がありません")
	}

	a := d.Acquisition
	if a.FrameRate <= 0 {
		invalid("無効なフレームレート: %d", a.FrameRate)
	}
	if a.OutputSize.Width <= 0 || a.OutputSize.Height <= 0 {
		invalid("無効な出力サイズ: %dx%d", a.OutputSize.Width, a.OutputSize.Height)
	}
	if !a.AutoExposure && (a.ManualExposureLevel < 1 || a.ManualExposureLevel > 100) {
		invalid("手動露出レベルは1から100で指定してください: %d", a.ManualExposureLevel)
	}
	if _, err := frame.ParseChannelOrder(a.ChannelOrder); err != nil {
		invalid("%v", err)
	}

	if d.ViewerEnabled && d.Viewer.FrameRate < 0 {
		invalid("無効な表示フレームレート: %d", d.Viewer.FrameRate)
	}
	if d.RecorderEnabled {
		if d.Recorder.FrameRate <= 0 {
			invalid("無効な録画フレームレート: %d", d.Recorder.FrameRate)
		}
		if d.Recorder.SaveDir == "" {
			invalid("保存先ディレクトリがありません")
		}
	}

	return errors.Join(errs...)
}

// ManualStart は手動で録画開始するデバイスがあるかを返す
func (c *Config) ManualStart() bool {
	for _, d := range c.Devices {
		if d.RecorderEnabled && !d.Recorder.AutoStartRecording {
			return true
		}
	}
	return false
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
