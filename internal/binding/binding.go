package binding

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/char5742/keyball-inertia/internal/inertia"
)

// キーイベントの値（input_event.value）
const (
	KeyReleased = 0
	KeyPressed  = 1
	KeyRepeated = 2
)

// Motion はバインディングから操作されるモーションエンジン
type Motion interface {
	Activate(cfg inertia.Config) error
	Release(x, y int8)
}

// Binding はキーコードと慣性設定の対応
type Binding struct {
	Code   uint16
	Config inertia.Config
}

// Binder はキーイベントを Activate / Release に変換する
type Binder struct {
	mu       sync.Mutex
	motion   Motion
	bindings map[uint16]inertia.Config
	held     map[uint16]inertia.Config
	log      zerolog.Logger
}

// New は新しい Binder を作成する
func New(motion Motion, bindings []Binding) *Binder {
	b := &Binder{
		motion: motion,
		held:   make(map[uint16]inertia.Config),
		log:    log.With().Str("component", "binding").Logger(),
	}
	b.SetBindings(bindings)
	return b
}

// SetBindings はバインディングを置き換える。
// 押下中のキーは押したときの設定で解放されるため、ここでは触らない。
func (b *Binder) SetBindings(bindings []Binding) {
	m := make(map[uint16]inertia.Config, len(bindings))
	for _, bd := range bindings {
		m[bd.Code] = bd.Config
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings = m
}

// HandleKey はキーイベントを処理し、バインドされたキーなら true を返す
func (b *Binder) HandleKey(code uint16, value int32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch value {
	case KeyPressed:
		cfg, ok := b.bindings[code]
		if !ok {
			return false
		}
		if err := b.motion.Activate(cfg); err != nil {
			b.log.Error().Err(err).Uint16("code", code).Msg("アクティベーションに失敗しました")
			return true
		}
		b.held[code] = cfg
		b.log.Debug().Uint16("code", code).Int8("x", cfg.XDirection).Int8("y", cfg.YDirection).Msg("押下")
		return true

	case KeyReleased:
		cfg, ok := b.held[code]
		if !ok {
			_, bound := b.bindings[code]
			return bound
		}
		delete(b.held, code)
		b.motion.Release(cfg.XDirection, cfg.YDirection)
		b.log.Debug().Uint16("code", code).Msg("解放")
		return true

	case KeyRepeated:
		_, ok := b.bindings[code]
		return ok
	}

	return false
}

// Resync は実際に押されているキー一覧と照合し、押されていないキーを解放する。
// SYN_DROPPED でイベントを取りこぼしたときに使う。
func (b *Binder) Resync(pressed []int) {
	down := make(map[uint16]bool, len(pressed))
	for _, code := range pressed {
		down[uint16(code)] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for code, cfg := range b.held {
		if down[code] {
			continue
		}
		delete(b.held, code)
		b.motion.Release(cfg.XDirection, cfg.YDirection)
		b.log.Info().Uint16("code", code).Msg("取りこぼした解放イベントを補完しました")
	}
}

// ReleaseAll は押下中のすべてのキーを解放する
func (b *Binder) ReleaseAll() {
	b.Resync(nil)
}

// Held は押下中のキー数を返す
func (b *Binder) Held() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held)
}
