package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"depthrig/internal/control"
)

type refreshMsg time.Time

// model は表示面を描画し、キー入力を処理する
type model struct {
	surface *Surface
}

func newModel(surface *Surface) model {
	return model{surface: surface}
}

func refresh() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// Init は定期的な再描画を開始する
func (m model) Init() tea.Cmd {
	return refresh()
}

// Update はキー入力と端末サイズの変更を処理する
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "s":
			m.send(control.CommandStartRecording)
		case "e":
			m.send(control.CommandStopRecording)
		case "q", "esc", "ctrl+c":
			// 終了操作は全ウィンドウを閉じる
			m.surface.Close()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.surface.resize(msg.Width, msg.Height)

	case refreshMsg:
		if m.surface.Closed() {
			return m, tea.Quit
		}
		return m, refresh()
	}
	return m, nil
}

func (m model) send(cmd control.Command) {
	if m.surface.commands == nil {
		return
	}
	m.surface.commands.Send(cmd)
}

// View は全ウィンドウを描画する
func (m model) View() string {
	return m.surface.view()
}
