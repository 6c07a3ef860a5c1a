package features

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/char5742/keyball-inertia/internal/device"
	"github.com/char5742/keyball-inertia/internal/event"
)

// 相対座標ポインタ（仮想マウス）を表現するインターフェース
type Pointer interface {
	// 1ティック分の移動量を送信する
	EmitMovement(dx, dy int8) error
	io.Closer
}

type virtualPointer struct {
	mu         sync.Mutex
	name       string
	deviceFile io.WriteCloser
}

// 新しい仮想マウスデバイスを作成する
func CreatePointer(path string, name string) (Pointer, error) {
	fd, err := createPointer(path, name)
	if err != nil {
		return nil, err
	}

	return &virtualPointer{name: name, deviceFile: fd}, nil
}

func (vp *virtualPointer) Close() error {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	if f, ok := vp.deviceFile.(*os.File); ok {
		_ = releaseDevice(f)
	}
	return vp.deviceFile.Close()
}

// EmitMovement は REL_X / REL_Y を書き込んで SYN_REPORT で確定する。
// 移動量0の軸はイベントを送らない。
func (vp *virtualPointer) EmitMovement(dx, dy int8) error {
	events := movementEvents(dx, dy)
	if len(events) == 0 {
		return nil
	}

	vp.mu.Lock()
	defer vp.mu.Unlock()
	return writeEvents(vp.deviceFile, events)
}

func movementEvents(dx, dy int8) []event.Event {
	var events []event.Event
	if dx != 0 {
		events = append(events, event.Event{Type: event.Rel, Code: event.RelX, Value: int32(dx)})
	}
	if dy != 0 {
		events = append(events, event.Event{Type: event.Rel, Code: event.RelY, Value: int32(dy)})
	}
	if len(events) > 0 {
		events = append(events, event.Event{Type: event.Syn, Code: event.SynReport, Value: 0})
	}
	return events
}

func createPointer(path string, name string) (*os.File, error) {
	deviceFile, err := createDeviceFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not create relative axis input device: %w", err)
	}

	// ボタンを持たない相対デバイスはマウスとして認識されないため EV_KEY も登録する
	err = registerDevice(deviceFile, uintptr(event.Key))
	if err != nil {
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %w", err)
	}

	for _, ev := range []int{
		event.MouseBtnLeft,
		event.MouseBtnRight,
		event.MouseBtnMiddle,
	} {
		if err = device.IOCtl(deviceFile, device.SetKeyBit, uintptr(ev)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("ボタンの登録に失敗しました %v: %w", ev, err)
		}
	}

	// 相対座標入力イベント(EV_REL)を登録する
	err = registerDevice(deviceFile, uintptr(event.Rel))
	if err != nil {
		return nil, fmt.Errorf("相対座標入力イベント(EV_REL)の登録に失敗しました: %w", err)
	}

	for _, ev := range []int{event.RelX, event.RelY} {
		if err = device.IOCtl(deviceFile, device.SetRelBit, uintptr(ev)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("座標軸の登録に失敗しました %v: %w", ev, err)
		}
	}

	if err := device.IOCtl(deviceFile, device.SetPropBit, uintptr(device.PropPointer)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("ポインターデバイスプロパティの設定に失敗しました: %w", err)
	}

	userDev := device.UserDev{
		Name: device.Name(name),
		ID: device.InputID{
			Bustype: device.BusUsb,
			Vendor:  0x4711,
			Product: 0x0818,
			Version: 1,
		},
	}

	fd, err := createUsbDevice(deviceFile, userDev)
	if err != nil {
		return nil, fmt.Errorf("USBデバイスの作成に失敗しました: %w", err)
	}

	return fd, nil
}

// デバイスファイルを作成する
func createDeviceFile(path string) (*os.File, error) {
	deviceFile, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, errors.Join(errors.New("デバイスファイルを開くのに失敗しました"), err)
	}
	return deviceFile, nil
}

// デバイスを解放する
func releaseDevice(deviceFile *os.File) error {
	return device.IOCtl(deviceFile, device.DevDestroy, uintptr(0))
}

// デバイスを登録する。失敗した場合はファイルを閉じる。
func registerDevice(deviceFile *os.File, evType uintptr) error {
	err := device.IOCtl(deviceFile, device.SetEvBit, evType)
	if err != nil {
		defer deviceFile.Close()
		if rerr := releaseDevice(deviceFile); rerr != nil {
			return fmt.Errorf("デバイスを解放するのに失敗しました: %w", rerr)
		}
		return fmt.Errorf("イベント種別 %d の登録に失敗しました: %w", evType, err)
	}
	return nil
}

// USBデバイスを作成する
func createUsbDevice(deviceFile *os.File, dev device.UserDev) (*os.File, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("ユーザーデバイスバッファの書き込みに失敗しました: %w", err)
	}
	if _, err := deviceFile.Write(buf.Bytes()); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイス構造体をデバイスファイルに書き込むのに失敗しました: %w", err)
	}

	if err := device.IOCtl(deviceFile, device.DevCreate, uintptr(0)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイスの作成に失敗しました: %w", err)
	}

	return deviceFile, nil
}

// イベントをまとめて書き込む
func writeEvents(w io.Writer, events []event.Event) error {
	buf := new(bytes.Buffer)
	for _, ev := range events {
		if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
			return fmt.Errorf("イベントをバッファに書き込むのに失敗しました: %w", err)
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
	}
	return nil
}
