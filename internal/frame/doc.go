// Package frame デプスカメラ1台分のフレームスナップショットを扱う
//
// # 責務
// - カラー・セカンダリ・デプスの3バッファとタイムスタンプの保持
// - ディープコピーとスティッキーマージ
// - デプスマップのカラーマップ化
// - チャンネル順序とサイズの正規化
//
// # 仕様
// - State はキャプチャごとに丸ごと置き換えられる値として扱う
// - 共有は常に Clone したコピーで行い、ポインタを他ゴルーチンへ渡さない
package frame
