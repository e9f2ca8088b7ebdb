// Package calib はカメラ内部パラメータとベースラインをテキストファイルで読み書きする
//
// 形式は2行:
//
//	fx 0 cx 0 fy cy 0 0 1
//	0.120000000000000000
package calib

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Matrix は3x3の内部パラメータ行列（行優先）
type Matrix [3][3]float64

// NewMatrix は焦点距離と光学中心から行列を作る
func NewMatrix(fx, fy, cx, cy float64) Matrix {
	return Matrix{
		{fx, 0, cx},
		{0, fy, cy},
		{0, 0, 1},
	}
}

// Write は行列とベースラインを書き出す
func Write(w io.Writer, k Matrix, baseline float64) error {
	values := make([]string, 0, 9)
	for _, row := range k {
		for _, v := range row {
			values = append(values, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	if _, err := fmt.Fprintf(w, "%s\n%.18f\n", strings.Join(values, " "), baseline); err != nil {
		return fmt.Errorf("キャリブレーションの書き込みに失敗: %w", err)
	}
	return nil
}

// Parse は Write の出力を読み戻す
func Parse(r io.Reader) (Matrix, float64, error) {
	var k Matrix
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		return k, 0, fmt.Errorf("行列の行がありません")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) != 9 {
		return k, 0, fmt.Errorf("行列の要素数が不正です: %d", len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return k, 0, fmt.Errorf("行列の要素 %d を解析できません: %w", i, err)
		}
		k[i/3][i%3] = v
	}

	if !scanner.Scan() {
		return k, 0, fmt.Errorf("ベースラインの行がありません")
	}
	baseline, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
	if err != nil {
		return k, 0, fmt.Errorf("ベースラインを解析できません: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return k, 0, err
	}
	return k, baseline, nil
}

// Save はファイルに書き出す
func Save(path string, k Matrix, baseline float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("キャリブレーションファイルの作成に失敗: %w", err)
	}
	if err := Write(f, k, baseline); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load はファイルから読み込む
func Load(path string) (Matrix, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Matrix{}, 0, fmt.Errorf("キャリブレーションファイルを開けません: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Parse(f)
}
