package features

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/char5742/keyball-inertia/internal/device"
	"github.com/char5742/keyball-inertia/internal/event"
)

// キーボードからの入力を読み取るインターフェース
type Keyboard interface {
	// 次の入力イベントを読み取る（ブロッキング）
	ReadEvent() (event.Event, error)
	// 現在押されているキーの一覧を取得する
	PressedKeys() ([]int, error)
	// キーボード入力を専有する
	Grab() error
	// キーボード入力の専有を解除する
	Release() error
	Close() error
}

type virtualKeyboard struct {
	file    *os.File
	grabbed bool
}

// 監視するデバイスのパスを指定してキーボードを作成する
func CreateKeyboard(path string) (Keyboard, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY, 0660)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	return &virtualKeyboard{file: f}, nil
}

func (k *virtualKeyboard) ReadEvent() (event.Event, error) {
	return readEvent(k.file)
}

// readEvent は input_event を1つ読み取ってデコードする
func readEvent(r io.Reader) (event.Event, error) {
	var e event.Event
	buf := make([]byte, event.Size)

	if _, err := io.ReadFull(r, buf); err != nil {
		return e, err
	}

	e.Time.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	e.Time.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return e, nil
}

func (k *virtualKeyboard) PressedKeys() ([]int, error) {
	keyBits := make([]byte, event.KeyMax/8+1)

	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		k.file.Fd(),
		uintptr(device.EVIOCGKEY),
		uintptr(unsafe.Pointer(&keyBits[0])),
	)
	if errno != 0 {
		return nil, errno
	}

	return pressedFromBits(keyBits), nil
}

func pressedFromBits(keyBits []byte) []int {
	var pressed []int
	for keyCode := 0; keyCode < len(keyBits)*8; keyCode++ {
		if keyBits[keyCode/8]&(1<<(keyCode%8)) != 0 {
			pressed = append(pressed, keyCode)
		}
	}
	return pressed
}

func (k *virtualKeyboard) Grab() error {
	if k.grabbed {
		return nil
	}
	if err := device.IOCtl(k.file, device.EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	k.grabbed = true
	return nil
}

func (k *virtualKeyboard) Release() error {
	if !k.grabbed {
		return nil
	}
	if err := device.IOCtl(k.file, device.EVIOCGRAB, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	k.grabbed = false
	return nil
}

func (k *virtualKeyboard) Close() error {
	_ = k.Release()
	return k.file.Close()
}
