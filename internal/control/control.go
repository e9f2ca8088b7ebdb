// Package control は録画の開始・停止などの操作入力を表示面から切り離して届ける
package control

// Command は外部からの操作
type Command int

const (
	CommandStartRecording Command = iota + 1
	CommandStopRecording
)

// String はログ用の名前を返す
func (c Command) String() string {
	switch c {
	case CommandStartRecording:
		return "start-recording"
	case CommandStopRecording:
		return "stop-recording"
	default:
		return "unknown"
	}
}

// Input は操作を受け取る側のインターフェース
// Poll はブロックせず、届いている操作があれば1件返す
type Input interface {
	Poll() (Command, bool)
}

// Bus はバッファ付きの操作キュー。複数の送信元から安全に送信できる
type Bus struct {
	ch chan Command
}

// NewBus は容量 size のBusを作成する
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 1
	}
	return &Bus{ch: make(chan Command, size)}
}

// Send は操作を積む。キューが満杯なら捨てて false を返す
func (b *Bus) Send(cmd Command) bool {
	select {
	case b.ch <- cmd:
		return true
	default:
		return false
	}
}

// Poll は操作を1件取り出す
func (b *Bus) Poll() (Command, bool) {
	select {
	case cmd := <-b.ch:
		return cmd, true
	default:
		return 0, false
	}
}
