package inertia

import (
	"errors"
	"fmt"
	"math"
)

// 設定値の検証エラー
var (
	ErrInvalidTimeToMax = errors.New("time_to_max must be in 1..127")
	ErrInvalidInterval  = errors.New("interval_ms must be greater than zero")
	ErrInvalidMaxSpeed  = errors.New("max_speed must be greater than zero")
	ErrInvalidDirection = errors.New("direction must be -1, 0 or 1")
)

// Config は1回のアクティベーションで渡される設定
//
// XDirection / YDirection の 0 は「その軸の方向を変更しない」を意味する。
type Config struct {
	XDirection int8   `toml:"x_direction" json:"x_direction"`
	YDirection int8   `toml:"y_direction" json:"y_direction"`
	DelayMs    uint16 `toml:"delay_ms" json:"delay_ms"`       // 静止状態からの初回ティックまでの遅延
	IntervalMs uint16 `toml:"interval_ms" json:"interval_ms"` // 定常ティック間隔
	MaxSpeed   int16  `toml:"max_speed" json:"max_speed"`     // 1ティックあたりの最大移動量（漸近値）
	TimeToMax  int16  `toml:"time_to_max" json:"time_to_max"` // 最大速度に達するまでのステップ数（速度の上限）
	Friction   uint8  `toml:"friction" json:"friction"`       // 減衰率 (x/256)
	MoveDelta  int8   `toml:"move_delta" json:"move_delta"`   // フレーム0でのみ使われる移動単位
}

// DefaultConfig はリファレンスのチューニング値を返す
func DefaultConfig() Config {
	return Config{
		DelayMs:    150,
		IntervalMs: 16,
		MaxSpeed:   16,
		TimeToMax:  32,
		Friction:   24,
		MoveDelta:  1,
	}
}

// Validate は除算や再スケジュールに使われる値を検証する
func (c Config) Validate() error {
	if c.TimeToMax <= 0 || c.TimeToMax > math.MaxInt8 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeToMax, c.TimeToMax)
	}
	if c.IntervalMs == 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, c.IntervalMs)
	}
	if c.MaxSpeed <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSpeed, c.MaxSpeed)
	}
	if !validDirection(c.XDirection) {
		return fmt.Errorf("%w: x_direction=%d", ErrInvalidDirection, c.XDirection)
	}
	if !validDirection(c.YDirection) {
		return fmt.Errorf("%w: y_direction=%d", ErrInvalidDirection, c.YDirection)
	}
	return nil
}

// WithDirection は方向だけを差し替えたコピーを返す
func (c Config) WithDirection(x, y int8) Config {
	c.XDirection = x
	c.YDirection = y
	return c
}

func validDirection(d int8) bool {
	return d >= -1 && d <= 1
}
