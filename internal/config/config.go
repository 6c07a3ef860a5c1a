package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/char5742/keyball-inertia/internal/binding"
	"github.com/char5742/keyball-inertia/internal/event"
	"github.com/char5742/keyball-inertia/internal/inertia"
)

// AppName は設定ディレクトリ名に使うアプリケーション名
const AppName = "keyball-inertia"

// ErrNoBindings はバインディングが1つもないときに返される
var ErrNoBindings = errors.New("no key bindings configured")

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Inertia     InertiaConfig     `toml:"inertia"`
	Bindings    []BindingConfig   `toml:"bindings"`
	Pointer     PointerConfig     `toml:"pointer"`
	Keyboard    KeyboardConfig    `toml:"keyboard"`
	DevicePrefs DevicePrefsConfig `toml:"device_prefs"`
	API         APIConfig         `toml:"api"`
	Log         LogConfig         `toml:"log"`
}

// InertiaConfig は慣性移動のチューニング値
type InertiaConfig struct {
	DelayMs    uint16 `toml:"delay_ms"`
	IntervalMs uint16 `toml:"interval_ms"`
	MaxSpeed   int16  `toml:"max_speed"`
	TimeToMax  int16  `toml:"time_to_max"`
	Friction   uint8  `toml:"friction"`
	MoveDelta  int8   `toml:"move_delta"`
}

// BindingConfig はキーと移動方向の対応
type BindingConfig struct {
	Key int  `toml:"key"` // evdev キーコード
	X   int8 `toml:"x"`
	Y   int8 `toml:"y"`
}

// PointerConfig は仮想マウスの設定
type PointerConfig struct {
	UinputPath string `toml:"uinput_path"`
	Name       string `toml:"name"`
}

// KeyboardConfig はキー入力の設定
type KeyboardConfig struct {
	// Grab が true の場合、キーボードを専有して他のアプリにキーを渡さない
	Grab bool `toml:"grab"`
}

// DevicePrefsConfig はデバイス設定の設定
type DevicePrefsConfig struct {
	PreferredKeyboardDevice string `toml:"preferred_keyboard_device"`
}

// APIConfig はAPIサーバーの設定
type APIConfig struct {
	Port int `toml:"port"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	d := inertia.DefaultConfig()
	return &Config{
		Inertia: InertiaConfig{
			DelayMs:    d.DelayMs,
			IntervalMs: d.IntervalMs,
			MaxSpeed:   d.MaxSpeed,
			TimeToMax:  d.TimeToMax,
			Friction:   d.Friction,
			MoveDelta:  d.MoveDelta,
		},
		Bindings: []BindingConfig{
			{Key: event.KeyUp, X: 0, Y: -1},
			{Key: event.KeyDown, X: 0, Y: 1},
			{Key: event.KeyLeft, X: -1, Y: 0},
			{Key: event.KeyRight, X: 1, Y: 0},
		},
		Pointer: PointerConfig{
			UinputPath: "/dev/uinput",
			Name:       "Keyball Inertia Pointer",
		},
		API: APIConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// InertiaFor はバインディングの方向を含む慣性設定を返す
func (c *Config) InertiaFor(b BindingConfig) inertia.Config {
	return inertia.Config{
		XDirection: b.X,
		YDirection: b.Y,
		DelayMs:    c.Inertia.DelayMs,
		IntervalMs: c.Inertia.IntervalMs,
		MaxSpeed:   c.Inertia.MaxSpeed,
		TimeToMax:  c.Inertia.TimeToMax,
		Friction:   c.Inertia.Friction,
		MoveDelta:  c.Inertia.MoveDelta,
	}
}

// KeyBindings はバインダー用のバインディング一覧を返す
func (c *Config) KeyBindings() []binding.Binding {
	bindings := make([]binding.Binding, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		bindings = append(bindings, binding.Binding{
			Code:   uint16(b.Key),
			Config: c.InertiaFor(b),
		})
	}
	return bindings
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	if len(c.Bindings) == 0 {
		return ErrNoBindings
	}
	for i, b := range c.Bindings {
		if b.Key <= 0 || b.Key > event.KeyMax {
			return fmt.Errorf("bindings[%d]: invalid key code %d", i, b.Key)
		}
		if b.X == 0 && b.Y == 0 {
			return fmt.Errorf("bindings[%d]: %w", i, inertia.ErrInvalidDirection)
		}
		if err := c.InertiaFor(b).Validate(); err != nil {
			return fmt.Errorf("bindings[%d]: %w", i, err)
		}
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	return nil
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultConfigPath はデフォルトの設定ファイルパスを返す
func DefaultConfigPath() (string, error) {
	dir, err := GetDefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	// デフォルト設定を用意
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	// [[bindings]] が書かれていればデフォルトを置き換える
	config.Bindings = nil

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return DefaultConfig(), fmt.Errorf("decode %s: %w", configPath, err)
	}

	if len(config.Bindings) == 0 {
		config.Bindings = DefaultConfig().Bindings
	}

	if err := config.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("validate %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// ファイルを開く（なければ作成）
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// TOML形式でエンコードして書き込み
	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
