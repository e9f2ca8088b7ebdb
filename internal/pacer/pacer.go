// Package pacer はフレームレートに基づく間引きを提供する
package pacer

import "time"

// Gate は前回受理から 1/fps 秒未満の呼び出しを捨てる
// 捨てた呼び出しはキューイングしない
type Gate struct {
	interval time.Duration
	last     time.Time
	accepted bool
	now      func() time.Time
}

// New は fps に対応するGateを作成する。fps<=0 なら常に受理する
func New(fps int) *Gate {
	return NewWithClock(fps, time.Now)
}

// NewWithClock は時刻取得関数を差し替えたGateを作成する（テスト用）
func NewWithClock(fps int, now func() time.Time) *Gate {
	var interval time.Duration
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return &Gate{interval: interval, now: now}
}

// Interval は最小間隔を返す
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Allow は今回の呼び出しを処理すべきかを返す。受理した場合は時刻を記録する
func (g *Gate) Allow() bool {
	now := g.now()
	if g.accepted && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	g.accepted = true
	return true
}
