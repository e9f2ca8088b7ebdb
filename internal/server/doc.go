// Package server は、録画制御用のHTTP APIを提供します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - フリートの状態とキャリブレーションの参照
//   - 録画の開始・停止操作の受け付け
//
// 録画操作はメインループへのキューに積むだけで、カメラには直接触れません。
package server
