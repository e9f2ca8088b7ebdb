// Package tui は端末上にカメラ映像を表示し、キー操作を録画操作に変換する
package tui

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"

	"depthrig/internal/control"
	"depthrig/internal/viewer"
)

// RefreshInterval は画面の再描画間隔
const RefreshInterval = time.Second / 30

// 端末サイズが分かるまでの仮の大きさ
const (
	defaultCols = 80
	defaultRows = 24
)

// Surface は端末全体を表示面とし、ウィンドウを横に並べて描く
type Surface struct {
	commands *control.Bus

	mu      sync.Mutex
	windows []*Window
	cols    int
	rows    int

	closed atomic.Bool
}

// NewSurface は新しいSurfaceを作成する
// commands には 's' / 'e' キーに対応する録画操作を送る
func NewSurface(commands *control.Bus) *Surface {
	return &Surface{
		commands: commands,
		cols:     defaultCols,
		rows:     defaultRows,
	}
}

// Open はウィンドウを追加する
func (s *Surface) Open(title string) (viewer.Display, error) {
	if s.closed.Load() {
		return nil, errors.New("表示面は既に閉じられています")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := &Window{title: title, surface: s}
	s.windows = append(s.windows, w)
	return w, nil
}

// Run は端末を占有して表示とキー入力を処理する。終了操作かctxのキャンセルで戻る
func (s *Surface) Run(ctx context.Context) error {
	program := tea.NewProgram(newModel(s), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	s.Close()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close は全ウィンドウを閉じる
func (s *Surface) Close() {
	s.closed.Store(true)
}

// Closed は表示面が閉じられたかを返す
func (s *Surface) Closed() bool {
	return s.closed.Load()
}

// resize は端末サイズを記録する
func (s *Surface) resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols, s.rows = cols, rows
}

// paneSize は1ウィンドウあたりの描画領域（セル数）を返す
func (s *Surface) paneSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.windows)
	if n == 0 {
		n = 1
	}
	// 枠線・タイトル・フッター分を除く
	cols := s.cols/n - 2
	rows := s.rows - 4
	return max(cols, 1), max(rows, 1)
}

// view はウィンドウを横に並べた画面を返す
func (s *Surface) view() string {
	s.mu.Lock()
	windows := append([]*Window(nil), s.windows...)
	s.mu.Unlock()

	panes := make([]string, 0, len(windows))
	for _, w := range windows {
		panes = append(panes, w.view())
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, panes...)
	return lipgloss.JoinVertical(lipgloss.Left, body, helpStyle.Render(helpText))
}

// Window は表示面上の1枚のウィンドウ
type Window struct {
	title   string
	surface *Surface

	mu       sync.Mutex
	rendered string
}

// Show は画像を端末のセル数に縮小して保持する。描画は次の再描画で行われる
func (w *Window) Show(img *image.RGBA) error {
	if w.surface.Closed() || img == nil {
		return nil
	}
	cols, rows := w.surface.paneSize()
	rendered := Render(img, cols, rows)

	w.mu.Lock()
	w.rendered = rendered
	w.mu.Unlock()
	return nil
}

// Closed はユーザーが終了操作をしたかを返す
func (w *Window) Closed() bool {
	return w.surface.Closed()
}

// Title はウィンドウタイトルを返す
func (w *Window) Title() string {
	return w.title
}

func (w *Window) view() string {
	w.mu.Lock()
	rendered := w.rendered
	w.mu.Unlock()

	if rendered == "" {
		rendered = waitingStyle.Render("waiting for frames...")
	}
	return paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(w.title), rendered))
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#005F87")).Padding(0, 1)
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#5F5F5F"))
	waitingStyle = lipgloss.NewStyle().Faint(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
)

const helpText = "s: 録画開始  e: 録画停止  q/esc: 終了"

// Render は画像を上下2画素を1セルにまとめた文字列に変換する
// 縦横比を保って cols x rows セルに収める
func Render(img *image.RGBA, cols, rows int) string {
	if img == nil || cols <= 0 || rows <= 0 {
		return ""
	}
	src := img.Rect
	if src.Empty() {
		return ""
	}

	// 1セル = 横1画素 x 縦2画素
	w, h := cols, rows*2
	if src.Dx()*h > src.Dy()*w {
		h = max(src.Dy()*w/src.Dx(), 2)
	} else {
		w = max(src.Dx()*h/src.Dy(), 1)
	}
	h -= h % 2

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(small, small.Rect, img, src, draw.Src, nil)

	var b strings.Builder
	for y := 0; y < h; y += 2 {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < w; x++ {
			top := small.RGBAAt(x, y)
			bottom := small.RGBAAt(x, y+1)
			b.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(hex(top.R, top.G, top.B))).
				Background(lipgloss.Color(hex(bottom.R, bottom.G, bottom.B))).
				Render("▀"))
		}
	}
	return b.String()
}

func hex(r, g, b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{'#',
		digits[r>>4], digits[r&0x0f],
		digits[g>>4], digits[g&0x0f],
		digits[b>>4], digits[b&0x0f],
	})
}
