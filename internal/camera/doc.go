// Package camera ステレオデプスカメラ1台分のキャプチャを担う
//
// # 責務
// - デバイスのオープン・クローズとライフサイクル管理
// - 専用ゴルーチンでのブロッキングキャプチャループ
// - 最新フレームの保持とディープコピーによる提供
// - 内部パラメータとベースラインのキャッシュ
//
// # 仕様
//   - FrameSource: closed -> open -> capturing -> closed（終端。再オープンは新規作成）
//   - Device: ベンダーSDKを包む抽象。Grab はブロッキング
//   - DeviceFactory: ドライバー名からDeviceを生成する
//   - キャプチャループはGrab失敗時に再接続せず終了する
//   - Shutdown は最大2秒だけループの終了を待ち、待ちきれなくてもデバイスを閉じる
//     （Grabがブロックし続けた場合ゴルーチンが残る。既知のリスク）
package camera
