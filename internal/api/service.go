package api

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/char5742/keyball-inertia/internal/binding"
	"github.com/char5742/keyball-inertia/internal/config"
	"github.com/char5742/keyball-inertia/internal/event"
	"github.com/char5742/keyball-inertia/internal/features"
	"github.com/char5742/keyball-inertia/internal/inertia"
)

// サービスの状態エラー
var (
	ErrAlreadyRunning = errors.New("service is already running")
	ErrNotRunning     = errors.New("service is not running")
	ErrNoKeyboard     = errors.New("no keyboard device found")
)

// deviceWatcher はホットプラグ監視 (features.DeviceMonitor)
type deviceWatcher interface {
	Start() error
	Stop()
	RegisterCallback(callback features.DeviceCallback)
}

// deviceOpener はデバイスの生成処理（テストで差し替える）
type deviceOpener struct {
	pointer  func(path, name string) (features.Pointer, error)
	keyboard func(path string) (features.Keyboard, error)
	scan     func() ([]features.Device, error)
	monitor  func() (deviceWatcher, error)
}

var defaultOpener = deviceOpener{
	pointer:  features.CreatePointer,
	keyboard: features.CreateKeyboard,
	scan:     features.ScanDevices,
	monitor: func() (deviceWatcher, error) {
		return features.NewDeviceMonitor()
	},
}

// PointerService はキーボード入力を慣性付きのポインタ移動に変換するサービス
//
// Engine はサービスの起動・停止をまたいでプロセス全体で1つだけ存在し、
// 移動量はサービス自身を経由して仮想マウスへ送られる。
type PointerService struct {
	cfg         *config.Config
	engine      *inertia.Engine
	binder      *binding.Binder
	statusMutex sync.RWMutex
	running     bool
	stopChan    chan struct{}
	pointer     features.Pointer
	keyboard    features.Keyboard
	keyboardDev features.Device
	monitor     deviceWatcher
	open        deviceOpener
	log         zerolog.Logger
}

// NewPointerService は新しいサービスを作成する
func NewPointerService(cfg *config.Config) *PointerService {
	return newPointerService(cfg, inertia.RealScheduler{}, defaultOpener)
}

func newPointerService(cfg *config.Config, sched inertia.Scheduler, open deviceOpener) *PointerService {
	s := &PointerService{
		cfg:  cfg,
		open: open,
		log:  log.With().Str("component", "service").Logger(),
	}
	s.engine = inertia.NewEngine(s, sched)
	s.binder = binding.New(s.engine, cfg.KeyBindings())
	return s
}

// Engine はプロセス全体で共有されるモーションエンジンを返す
func (s *PointerService) Engine() *inertia.Engine {
	return s.engine
}

// Config は現在の設定を返す
func (s *PointerService) Config() *config.Config {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.cfg
}

// EmitMovement は inertia.Sink の実装。停止中の移動量は破棄する。
func (s *PointerService) EmitMovement(dx, dy int8) error {
	s.statusMutex.RLock()
	pointer := s.pointer
	s.statusMutex.RUnlock()

	if pointer == nil {
		return nil
	}
	return pointer.EmitMovement(dx, dy)
}

// Start はサービスを開始する
func (s *PointerService) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	pointer, err := s.open.pointer(s.cfg.Pointer.UinputPath, s.cfg.Pointer.Name)
	if err != nil {
		return fmt.Errorf("仮想マウスの作成に失敗しました: %w", err)
	}

	devices, err := s.open.scan()
	if err != nil {
		pointer.Close()
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}

	dev, ok := features.FindKeyboard(devices, s.cfg.DevicePrefs.PreferredKeyboardDevice)
	if !ok {
		pointer.Close()
		return ErrNoKeyboard
	}

	s.pointer = pointer
	s.stopChan = make(chan struct{})
	s.running = true

	if err := s.attachKeyboardLocked(dev); err != nil {
		s.running = false
		s.pointer = nil
		pointer.Close()
		return err
	}

	if s.open.monitor != nil {
		monitor, err := s.open.monitor()
		if err != nil {
			s.log.Warn().Err(err).Msg("デバイスモニターを起動できません。ホットプラグは無効です")
		} else {
			// 初回スキャンの通知は受け取らない（statusMutex を保持しているため）
			if err := monitor.Start(); err != nil {
				s.log.Warn().Err(err).Msg("デバイスモニターの開始に失敗しました")
			} else {
				monitor.RegisterCallback(s.onDeviceEvent)
				s.monitor = monitor
			}
		}
	}

	s.log.Info().Str("keyboard", dev.Name).Str("pointer", s.cfg.Pointer.Name).Msg("サービスを開始しました")
	return nil
}

// Stop はサービスを停止する
func (s *PointerService) Stop() error {
	s.statusMutex.Lock()

	if !s.running {
		s.statusMutex.Unlock()
		return ErrNotRunning
	}

	close(s.stopChan)
	s.running = false

	monitor := s.monitor
	s.monitor = nil
	keyboard := s.keyboard
	s.keyboard = nil
	pointer := s.pointer
	s.pointer = nil
	s.statusMutex.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if keyboard != nil {
		keyboard.Close()
	}

	// 押下中のキーを解放し、残りの慣性は破棄される
	s.binder.ReleaseAll()

	if pointer != nil {
		if err := pointer.Close(); err != nil {
			return fmt.Errorf("仮想マウスのクローズに失敗しました: %w", err)
		}
	}

	s.log.Info().Msg("サービスを停止しました")
	return nil
}

// UpdateConfig は設定を更新し、バインディングを差し替える
func (s *PointerService) UpdateConfig(cfg *config.Config) {
	s.statusMutex.Lock()
	s.cfg = cfg
	s.statusMutex.Unlock()

	s.binder.SetBindings(cfg.KeyBindings())
	s.log.Info().Int("bindings", len(cfg.Bindings)).Msg("設定を更新しました")
}

// IsRunning はサービスが実行中かどうかを返す
func (s *PointerService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// KeyboardDevice は使用中のキーボードを返す
func (s *PointerService) KeyboardDevice() (features.Device, bool) {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.keyboardDev, s.keyboard != nil
}

// attachKeyboardLocked はキーボードを開いて読み取りループを開始する。statusMutex を保持して呼ぶ。
func (s *PointerService) attachKeyboardLocked(dev features.Device) error {
	kbd, err := s.open.keyboard(dev.Path)
	if err != nil {
		return fmt.Errorf("キーボードデバイスのオープンに失敗しました[path=%s]: %w", dev.Path, err)
	}

	if s.cfg.Keyboard.Grab {
		if err := kbd.Grab(); err != nil {
			s.log.Warn().Err(err).Str("keyboard", dev.Name).Msg("キーボードの専有に失敗しました")
		}
	}

	s.keyboard = kbd
	s.keyboardDev = dev
	go s.runKeyLoop(kbd, s.stopChan)
	return nil
}

// runKeyLoop はキーイベントを読み取ってバインダーに渡す
func (s *PointerService) runKeyLoop(kbd features.Keyboard, stop <-chan struct{}) {
	for {
		ev, err := kbd.ReadEvent()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			s.log.Warn().Err(err).Msg("キーボードの読み取りに失敗しました")
			s.detachKeyboard(kbd)
			return
		}
		s.handleEvent(kbd, ev)
	}
}

func (s *PointerService) handleEvent(kbd features.Keyboard, ev event.Event) {
	switch {
	case ev.IsDropped():
		pressed, err := kbd.PressedKeys()
		if err != nil {
			s.log.Warn().Err(err).Msg("押下中のキーの取得に失敗しました")
			s.binder.ReleaseAll()
			return
		}
		s.binder.Resync(pressed)

	case ev.IsKey():
		s.binder.HandleKey(ev.Code, ev.Value)
	}
}

// detachKeyboard は切断されたキーボードを閉じ、押下中のキーを解放する
func (s *PointerService) detachKeyboard(kbd features.Keyboard) {
	s.statusMutex.Lock()
	if s.keyboard == kbd {
		s.keyboard = nil
	}
	s.statusMutex.Unlock()

	kbd.Close()
	s.binder.ReleaseAll()
}

// onDeviceEvent はホットプラグ時にキーボードを再接続する
func (s *PointerService) onDeviceEvent(ev features.DeviceEvent) {
	if ev.Device.Type != features.DeviceTypeKeyboard || ev.Type == features.DeviceRemoved {
		return
	}

	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if !s.running {
		return
	}

	// 使用中のキーボードが抜き差しされた場合は古いファイルを捨てて開き直す
	replug := s.keyboard != nil && ev.Device.Name == s.keyboardDev.Name
	if s.keyboard != nil && !replug {
		return
	}

	preferred := s.cfg.DevicePrefs.PreferredKeyboardDevice
	if !replug && preferred != "" && ev.Device.Name != preferred {
		return
	}

	if replug {
		stale := s.keyboard
		s.keyboard = nil
		stale.Close()
	}

	if err := s.attachKeyboardLocked(ev.Device); err != nil {
		s.log.Warn().Err(err).Msg("キーボードの再接続に失敗しました")
		return
	}
	s.log.Info().Str("keyboard", ev.Device.Name).Msg("キーボードを再接続しました")
}
