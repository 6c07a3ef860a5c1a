package inertia

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed は Close 後に Activate が呼ばれたときに返される
var ErrClosed = errors.New("inertia engine is closed")

// Sink は計算された移動量を受け取る出力先
type Sink interface {
	EmitMovement(dx, dy int8) error
}

// SinkFunc は関数を Sink として扱うためのアダプタ
type SinkFunc func(dx, dy int8) error

func (f SinkFunc) EmitMovement(dx, dy int8) error {
	return f(dx, dy)
}

// Movement は1ティック分の移動量
type Movement struct {
	DX int8 `json:"dx"`
	DY int8 `json:"dy"`
}

// IsZero は両軸とも移動がないかどうかを返す
func (m Movement) IsZero() bool {
	return m.DX == 0 && m.DY == 0
}

// State はモーション状態のスナップショット
type State struct {
	Frame     uint32 `json:"frame"` // 0 は静止状態（または開始直前）
	XDir      int8   `json:"x_dir"`
	YDir      int8   `json:"y_dir"`
	XVelocity int8   `json:"x_velocity"`
	YVelocity int8   `json:"y_velocity"`
	Armed     bool   `json:"armed"`
	Config    Config `json:"config"` // 最後に適用されたチューニング値（方向は含まない）
}

// AtRest は両軸とも方向・速度が0かどうかを返す
func (s State) AtRest() bool {
	return s.XDir == 0 && s.YDir == 0 && s.XVelocity == 0 && s.YVelocity == 0
}

// Engine はプロセス全体で共有される慣性シミュレーション
//
// 複数のバインディングが同じポインタを動かすため、速度はバインディングごとではなく
// Engine が一元管理する。Activate / Release / ティック処理は mu で直列化される。
type Engine struct {
	mu      sync.Mutex
	state   State
	pending Movement
	timer   Timer
	gen     uint64 // 取り消し済みのティックを無視するための世代番号
	closed  bool

	sink  Sink
	sched Scheduler
	log   zerolog.Logger
}

// NewEngine は静止状態の Engine を作成する
func NewEngine(sink Sink, sched Scheduler) *Engine {
	cfg := DefaultConfig()
	return &Engine{
		state: State{Config: cfg},
		sink:  sink,
		sched: sched,
		log:   log.With().Str("component", "inertia").Logger(),
	}
}

// SetLogger はロガーを差し替える
func (e *Engine) SetLogger(l zerolog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = l
}

// Activate はキー押下を処理する。
// 設定を反映し、静止状態からの開始であれば即座に1サンプル出力してからティックを開始する。
func (e *Engine) Activate(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	e.applyConfig(cfg)

	if e.state.Frame == 0 {
		s := &e.state
		e.pending = Movement{
			DX: calcMovement(s.XDir, s.XVelocity, s.Frame, s.Config.MoveDelta, s.Config.TimeToMax, s.Config.MaxSpeed),
			DY: calcMovement(s.YDir, s.YVelocity, s.Frame, s.Config.MoveDelta, s.Config.TimeToMax, s.Config.MaxSpeed),
		}
		e.emit()
	}

	if e.state.AtRest() {
		return nil
	}

	if e.timer == nil {
		delay := e.state.Config.IntervalMs
		if e.state.Frame == 0 {
			delay = e.state.Config.DelayMs
		}
		e.arm(delay)
	}

	return nil
}

// Release はキー解放を処理する。
// 現在の方向が解放された方向と一致する軸だけ方向を0に戻し、以降は摩擦で減速する。
func (e *Engine) Release(x, y int8) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if x != 0 && e.state.XDir == x {
		e.state.XDir = 0
	}
	if y != 0 && e.state.YDir == y {
		e.state.YDir = 0
	}

	// 速度が付く前に離された場合は保留中のティックを取り消して静止状態に戻す
	if e.state.AtRest() && e.timer != nil {
		e.disarm()
		e.state.Frame = 0
		e.log.Debug().Msg("ティック前に解放されたため停止しました")
	}
}

// Snapshot は現在の状態のコピーを返す
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	s.Armed = e.timer != nil
	return s
}

// Idle はティックが停止していて静止状態かどうかを返す
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer == nil && e.state.Frame == 0 && e.state.AtRest()
}

// Close は保留中のティックを停止し、以降の Activate を拒否する
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	if e.timer != nil {
		e.disarm()
	}
}

// tick は1ステップ分シミュレーションを進める
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen || e.closed {
		return
	}
	e.timer = nil

	s := &e.state
	c := s.Config

	s.XVelocity = calcVelocity(s.XDir, s.XVelocity, c.Friction, c.TimeToMax)
	s.YVelocity = calcVelocity(s.YDir, s.YVelocity, c.Friction, c.TimeToMax)

	e.pending = Movement{
		DX: calcMovement(s.XDir, s.XVelocity, s.Frame, c.MoveDelta, c.TimeToMax, c.MaxSpeed),
		DY: calcMovement(s.YDir, s.YVelocity, s.Frame, c.MoveDelta, c.TimeToMax, c.MaxSpeed),
	}
	e.emit()

	s.Frame++

	if s.AtRest() {
		e.log.Debug().Uint32("frames", s.Frame).Msg("静止状態に戻りました")
		s.Frame = 0
		return
	}

	e.arm(c.IntervalMs)
}

// applyConfig は設定をモーション状態に反映する。方向は0以外のときだけ上書きする。
func (e *Engine) applyConfig(cfg Config) {
	s := &e.state

	if cfg.XDirection != 0 {
		s.XDir = cfg.XDirection
	}
	if cfg.YDirection != 0 {
		s.YDir = cfg.YDirection
	}

	s.Config = cfg.WithDirection(0, 0)
	s.XVelocity = clampVelocity(s.XVelocity, cfg.TimeToMax)
	s.YVelocity = clampVelocity(s.YVelocity, cfg.TimeToMax)
}

// emit は保留中の移動量を出力してクリアする。両軸0なら何もしない。
func (e *Engine) emit() {
	m := e.pending
	e.pending = Movement{}

	if m.IsZero() {
		return
	}
	if e.sink == nil {
		return
	}
	if err := e.sink.EmitMovement(m.DX, m.DY); err != nil {
		e.log.Warn().Err(err).Int8("dx", m.DX).Int8("dy", m.DY).Msg("移動量の出力に失敗しました")
	}
}

func (e *Engine) arm(delayMs uint16) {
	e.gen++
	gen := e.gen
	e.timer = e.sched.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() { e.tick(gen) })
}

func (e *Engine) disarm() {
	e.timer.Stop()
	e.timer = nil
	e.gen++
}

func clampVelocity(v int8, timeToMax int16) int8 {
	if int16(v) > timeToMax {
		return int8(timeToMax)
	}
	if int16(v) < -timeToMax {
		return int8(-timeToMax)
	}
	return v
}
