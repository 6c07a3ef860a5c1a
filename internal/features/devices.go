package features

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ByIDDir は永続的なデバイス名のシンボリックリンクが置かれるディレクトリ
const ByIDDir = "/dev/input/by-id"

type Device struct {
	Name string
	Path string
	Type DeviceType
}

// デバイスタイプを表す列挙型
type DeviceType int

const (
	DeviceTypeKeyboard DeviceType = iota
	DeviceTypeMouse
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeKeyboard:
		return "keyboard"
	case DeviceTypeMouse:
		return "mouse"
	}
	return "unknown"
}

// DeviceEventType はデバイスイベントの種類を表す
type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceRemoved
	DeviceChanged
)

// DeviceEvent はデバイスの変更イベントを表す
type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
}

// DeviceCallback はデバイスイベント発生時に呼び出されるコールバック関数の型
type DeviceCallback func(event DeviceEvent)

// ScanDevices は現在接続されているキーボードとマウスの一覧を返す
func ScanDevices() ([]Device, error) {
	return scanDir(ByIDDir)
}

func scanDir(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, entry := range entries {
		// eventが含まれない場合はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// 絶対パスを構築
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Join(filepath.Dir(dir), filepath.Base(realPath))
		}

		if strings.Contains(entry.Name(), "kbd") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeKeyboard})
		}
		if strings.Contains(entry.Name(), "mouse") {
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeMouse})
		}
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// FindKeyboard は優先キーボード、なければ最初に見つかったキーボードを返す
func FindKeyboard(devices []Device, preferred string) (Device, bool) {
	var first *Device
	for i := range devices {
		d := &devices[i]
		if d.Type != DeviceTypeKeyboard {
			continue
		}
		if preferred != "" && d.Name == preferred {
			return *d, true
		}
		if first == nil {
			first = d
		}
	}
	if first == nil {
		return Device{}, false
	}
	return *first, true
}

// DeviceMonitor はデバイスの接続状態を監視する構造体
type DeviceMonitor struct {
	dir       string
	watcher   *fsnotify.Watcher
	callbacks []DeviceCallback
	devices   map[string]Device // 名前をキーにしたデバイスマップ
	mutex     sync.RWMutex
	stopChan  chan struct{}
	debounce  time.Duration
	log       zerolog.Logger
}

// NewDeviceMonitor は /dev/input/by-id を監視する DeviceMonitor を作成する
func NewDeviceMonitor() (*DeviceMonitor, error) {
	return newDeviceMonitor(ByIDDir)
}

func newDeviceMonitor(dir string) (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &DeviceMonitor{
		dir:      dir,
		watcher:  watcher,
		devices:  make(map[string]Device),
		stopChan: make(chan struct{}),
		debounce: 500 * time.Millisecond,
		log:      log.With().Str("component", "devices").Logger(),
	}, nil
}

// Start はデバイスの監視を開始する
func (dm *DeviceMonitor) Start() error {
	dm.log.Info().Str("dir", dm.dir).Msg("デバイスモニターを開始します")

	// by-id はデバイスが1つもないと存在しないため親ディレクトリも監視する
	for _, dir := range []string{filepath.Dir(dm.dir), dm.dir} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := dm.watcher.Add(dir); err != nil {
			dm.log.Warn().Err(err).Str("dir", dir).Msg("ディレクトリの監視に失敗しました")
		}
	}

	dm.Rescan()

	go dm.watchEvents()
	return nil
}

// Stop はデバイスの監視を停止する
func (dm *DeviceMonitor) Stop() {
	select {
	case <-dm.stopChan:
		return
	default:
	}

	dm.log.Info().Msg("デバイスモニターを停止します")
	close(dm.stopChan)
	dm.watcher.Close()
}

// RegisterCallback はデバイスイベントのコールバック関数を登録する
func (dm *DeviceMonitor) RegisterCallback(callback DeviceCallback) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.callbacks = append(dm.callbacks, callback)
}

// Rescan はデバイス一覧を再スキャンし、差分をコールバックに通知する
func (dm *DeviceMonitor) Rescan() {
	dm.rescan(nil)
}

// rescan は replugged に含まれる名前を、スナップショットが変わっていなくても抜き差しとして扱う
func (dm *DeviceMonitor) rescan(replugged map[string]bool) {
	devices, err := scanDir(dm.dir)
	if err != nil && !os.IsNotExist(err) {
		dm.log.Warn().Err(err).Msg("デバイス再スキャンに失敗しました")
		return
	}

	for _, ev := range dm.update(devices, replugged) {
		dm.notifyCallbacks(ev)
	}
}

// update は現在のデバイス一覧を更新し、変更イベントを返す。
// デバウンス中に削除と再作成が起きた名前 (replugged) は Removed と Added を続けて返す。
func (dm *DeviceMonitor) update(newDevices []Device, replugged map[string]bool) []DeviceEvent {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	var events []DeviceEvent
	seen := make(map[string]bool, len(newDevices))

	for _, device := range newDevices {
		seen[device.Name] = true
		old, exists := dm.devices[device.Name]
		switch {
		case !exists:
			dm.log.Info().Str("name", device.Name).Str("path", device.Path).Msg("新しいデバイスを追加")
			events = append(events, DeviceEvent{Type: DeviceAdded, Device: device})
		case old.Path != device.Path:
			dm.log.Info().Str("name", device.Name).Str("old", old.Path).Str("new", device.Path).Msg("デバイスパスが変更されました")
			events = append(events, DeviceEvent{Type: DeviceChanged, Device: device})
		case replugged[device.Name]:
			dm.log.Info().Str("name", device.Name).Str("path", device.Path).Msg("デバイスが再接続されました")
			events = append(events,
				DeviceEvent{Type: DeviceRemoved, Device: old},
				DeviceEvent{Type: DeviceAdded, Device: device},
			)
		}
		dm.devices[device.Name] = device
	}

	for name, device := range dm.devices {
		if seen[name] {
			continue
		}
		dm.log.Info().Str("name", name).Str("path", device.Path).Msg("デバイスを削除")
		events = append(events, DeviceEvent{Type: DeviceRemoved, Device: device})
		delete(dm.devices, name)
	}

	return events
}

// notifyCallbacks は登録されているすべてのコールバックに通知する
func (dm *DeviceMonitor) notifyCallbacks(event DeviceEvent) {
	dm.mutex.RLock()
	callbacks := append([]DeviceCallback(nil), dm.callbacks...)
	dm.mutex.RUnlock()

	for _, cb := range callbacks {
		cb(event)
	}
}

// watchEvents はfsnotifyのイベントを監視する
func (dm *DeviceMonitor) watchEvents() {
	// 一時的なファイルシステムイベントを収集してバッチ処理する
	eventTimer := time.NewTimer(dm.debounce)
	eventTimer.Stop()
	pendingRescan := false
	// デバウンス中に消えた名前
	replugged := make(map[string]bool)

	for {
		select {
		case <-dm.stopChan:
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				dm.rescan(replugged)
				replugged = make(map[string]bool)
			}

		case ev, ok := <-dm.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && ev.Name == dm.dir {
				_ = dm.watcher.Add(dm.dir)
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Dir(ev.Name) == dm.dir {
				replugged[filepath.Base(ev.Name)] = true
			}

			dm.log.Debug().Str("op", ev.Op.String()).Str("name", ev.Name).Msg("ファイルシステムイベント")
			if !pendingRescan {
				pendingRescan = true
				eventTimer.Reset(dm.debounce)
			}

		case err, ok := <-dm.watcher.Errors:
			if !ok {
				return
			}
			dm.log.Warn().Err(err).Msg("ファイルシステム監視エラー")
		}
	}
}

// GetConnectedDevices は現在接続されているデバイスのスナップショットを返す
func (dm *DeviceMonitor) GetConnectedDevices() []Device {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	devices := make([]Device, 0, len(dm.devices))
	for _, device := range dm.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })

	return devices
}
