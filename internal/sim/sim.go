// Package sim はモーションエンジンを仮想時計で動かし、ティックごとの出力を記録する。
// 実デバイスなしでチューニング値を確認するために使う。
package sim

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/char5742/keyball-inertia/internal/inertia"
)

// ErrNoDirection は方向が指定されていないときに返される
var ErrNoDirection = errors.New("simulation needs a non-zero direction")

// Sample は1ティック分の記録
type Sample struct {
	Tick      int    `json:"tick"`
	TimeMs    int64  `json:"time_ms"`
	Frame     uint32 `json:"frame"`
	XVelocity int8   `json:"x_velocity"`
	YVelocity int8   `json:"y_velocity"`
	DX        int8   `json:"dx"`
	DY        int8   `json:"dy"`
	Emitted   bool   `json:"emitted"`
	Held      bool   `json:"held"`
}

type recorder struct {
	last    inertia.Movement
	emitted bool
}

func (r *recorder) EmitMovement(dx, dy int8) error {
	r.last = inertia.Movement{DX: dx, DY: dy}
	r.emitted = true
	return nil
}

func (r *recorder) take() (inertia.Movement, bool) {
	m, ok := r.last, r.emitted
	r.last, r.emitted = inertia.Movement{}, false
	return m, ok
}

// Run は cfg の方向を hold ティック押し続けてから離し、静止するか maxTicks に達するまで実行する。
// Tick 0 は押下直後の即時出力。
func Run(cfg inertia.Config, hold, maxTicks int) ([]Sample, error) {
	if cfg.XDirection == 0 && cfg.YDirection == 0 {
		return nil, ErrNoDirection
	}

	rec := &recorder{}
	sched := inertia.NewManualScheduler()
	engine := inertia.NewEngine(rec, sched)
	defer engine.Close()
	// 出力は表にまとめるのでティックごとのログは出さない
	engine.SetLogger(zerolog.Nop())

	if err := engine.Activate(cfg); err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}

	samples := []Sample{record(0, sched, engine, rec, true)}
	held := true

	for tick := 1; tick <= maxTicks; tick++ {
		if held && tick > hold {
			engine.Release(cfg.XDirection, cfg.YDirection)
			held = false
		}
		if !sched.RunNext() {
			break
		}
		samples = append(samples, record(tick, sched, engine, rec, held))
	}

	return samples, nil
}

func record(tick int, sched *inertia.ManualScheduler, engine *inertia.Engine, rec *recorder, held bool) Sample {
	s := engine.Snapshot()
	m, ok := rec.take()
	return Sample{
		Tick:      tick,
		TimeMs:    sched.Now().Milliseconds(),
		Frame:     s.Frame,
		XVelocity: s.XVelocity,
		YVelocity: s.YVelocity,
		DX:        m.DX,
		DY:        m.DY,
		Emitted:   ok,
		Held:      held,
	}
}

// Write はサンプルを表形式で出力する
func Write(w io.Writer, samples []Sample) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "tick\tms\tframe\tvx\tvy\tdx\tdy\theld\t")
	for _, s := range samples {
		held := ""
		if s.Held {
			held = "*"
		}
		dx, dy := "-", "-"
		if s.Emitted {
			dx, dy = fmt.Sprint(s.DX), fmt.Sprint(s.DY)
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t\n",
			s.Tick, s.TimeMs, s.Frame, s.XVelocity, s.YVelocity, dx, dy, held)
	}
	return tw.Flush()
}

// Distance は出力された移動量の合計を返す
func Distance(samples []Sample) (x, y int) {
	for _, s := range samples {
		x += int(s.DX)
		y += int(s.DY)
	}
	return x, y
}
