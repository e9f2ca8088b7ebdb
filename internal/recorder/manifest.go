package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile はセッションディレクトリに置くメタデータのファイル名
const ManifestFile = "session.yaml"

// Manifest は録画セッションのメタデータ
type Manifest struct {
	SessionID string     `yaml:"session_id"`
	DeviceID  string     `yaml:"device_id"`
	FrameRate int        `yaml:"frame_rate"`
	Width     int        `yaml:"width"`
	Height    int        `yaml:"height"`
	Codec     string     `yaml:"codec"`
	Files     []string   `yaml:"files"`
	StartedAt time.Time  `yaml:"started_at"`
	StoppedAt *time.Time `yaml:"stopped_at,omitempty"`
	Frames    int        `yaml:"frames"`
}

// writeManifest はマニフェストをdirに書き出す
func writeManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("マニフェストの変換に失敗: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("マニフェストの書き込みに失敗: %w", err)
	}
	return nil
}

// ReadManifest はセッションディレクトリのマニフェストを読み込む
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("マニフェストの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("マニフェストの解析に失敗: %w", err)
	}
	return m, nil
}
