package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// Fourcc は出力動画のコーデック識別子
const Fourcc = "mp4v"

// FFmpegFactory は生のRGBAフレームをffmpegの標準入力へ流すSinkを作る
type FFmpegFactory struct {
	Binary string // ffmpegの実行ファイル（空ならPATHから探す）
}

// NewFFmpegFactory は新しいFFmpegFactoryを作成する
func NewFFmpegFactory() *FFmpegFactory {
	return &FFmpegFactory{Binary: "ffmpeg"}
}

// Validate はffmpegが利用可能かチェックする
func (f *FFmpegFactory) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary(), "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("FFmpegが見つかりません。インストールしてください: %w", err)
	}
	return nil
}

// Create はffmpegプロセスを起動する
func (f *FFmpegFactory) Create(path string, size image.Point, fps int) (Sink, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("フレームサイズが無効です: %v", size)
	}
	if fps <= 0 {
		fps = 30
	}

	cmd := exec.Command(f.binary(), ffmpegArgs(path, size, fps)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdinパイプの作成に失敗: %w", err)
	}
	sink := &ffmpegSink{path: path, size: size, cmd: cmd, stdin: stdin}
	cmd.Stderr = &sink.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}
	return sink, nil
}

func (f *FFmpegFactory) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

// ffmpegArgs は標準入力のrawvideoをmp4vで符号化する引数を組み立てる
func ffmpegArgs(path string, size image.Point, fps int) []string {
	return []string{
		"-y", // 上書き許可
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", size.X, size.Y),
		"-r", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "mpeg4",
		"-tag:v", Fourcc,
		"-pix_fmt", "yuv420p",
		path,
	}
}

type ffmpegSink struct {
	path   string
	size   image.Point
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	mu     sync.Mutex
	closed bool
}

func (s *ffmpegSink) WriteFrame(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("動画出力は既に閉じられています")
	}
	if img.Rect.Dx() != s.size.X || img.Rect.Dy() != s.size.Y {
		return fmt.Errorf("フレームサイズが一致しません: %v != %v", img.Rect.Size(), s.size)
	}

	rowBytes := s.size.X * 4
	if img.Stride == rowBytes {
		_, err := s.stdin.Write(img.Pix[:rowBytes*s.size.Y])
		return s.wrap(err)
	}
	for y := 0; y < s.size.Y; y++ {
		offset := y * img.Stride
		if _, err := s.stdin.Write(img.Pix[offset : offset+rowBytes]); err != nil {
			return s.wrap(err)
		}
	}
	return nil
}

func (s *ffmpegSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// 標準入力を閉じるとffmpegが書き出しを終えて終了する
	_ = s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("動画 %s の書き出しに失敗: %w (stderr: %s)", s.path, err, s.stderr.String())
	}
	return nil
}

func (s *ffmpegSink) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("動画 %s への書き込みに失敗: %w", s.path, err)
}
