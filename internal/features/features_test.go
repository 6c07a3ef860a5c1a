package features

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/keyball-inertia/internal/event"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestMovementEvents(t *testing.T) {
	assert.Empty(t, movementEvents(0, 0))

	events := movementEvents(3, 0)
	require.Len(t, events, 2)
	assert.Equal(t, uint16(event.Rel), events[0].Type)
	assert.Equal(t, uint16(event.RelX), events[0].Code)
	assert.Equal(t, int32(3), events[0].Value)
	assert.Equal(t, uint16(event.Syn), events[1].Type)

	events = movementEvents(-2, -127)
	require.Len(t, events, 3)
	assert.Equal(t, uint16(event.RelY), events[1].Code)
	assert.Equal(t, int32(-127), events[1].Value)
}

func TestPointerWritesInputEvents(t *testing.T) {
	buf := &bufferCloser{}
	p := &virtualPointer{name: "test", deviceFile: buf}

	require.NoError(t, p.EmitMovement(0, 0))
	assert.Equal(t, 0, buf.Len())

	require.NoError(t, p.EmitMovement(5, -1))
	require.Equal(t, 3*event.Size, buf.Len())

	var got []event.Event
	for buf.Len() > 0 {
		ev, err := readEvent(&buf.Buffer)
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, int32(5), got[0].Value)
	assert.Equal(t, int32(-1), got[1].Value)
	assert.Equal(t, uint16(event.SynReport), got[2].Code)

	require.NoError(t, p.Close())
	assert.True(t, buf.closed)
}

func TestReadEventShort(t *testing.T) {
	_, err := readEvent(bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err)
}

func TestPressedFromBits(t *testing.T) {
	bits := make([]byte, event.KeyMax/8+1)
	bits[event.KeyLeft/8] |= 1 << (event.KeyLeft % 8)
	bits[event.KeyDown/8] |= 1 << (event.KeyDown % 8)

	assert.Equal(t, []int{event.KeyLeft, event.KeyDown}, pressedFromBits(bits))
}

func makeByID(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "by-id")
	require.NoError(t, os.Mkdir(dir, 0755))
	return dir
}

func link(t *testing.T, dir, name, target string) {
	t.Helper()
	require.NoError(t, os.Symlink(target, filepath.Join(dir, name)))
}

func TestScanDir(t *testing.T) {
	dir := makeByID(t)
	link(t, dir, "usb-Keyball_Keyball44-event-kbd", "../event3")
	link(t, dir, "usb-Keyball_Keyball44-event-mouse", "../event4")
	link(t, dir, "usb-Keyball_Keyball44-mouse", "../mouse0")
	link(t, dir, "usb-Other-event-kbd", "/dev/input/event9")

	devices, err := scanDir(dir)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, Device{
		Name: "usb-Keyball_Keyball44-event-kbd",
		Path: filepath.Join(filepath.Dir(dir), "event3"),
		Type: DeviceTypeKeyboard,
	}, devices[0])
	assert.Equal(t, DeviceTypeMouse, devices[1].Type)
	assert.Equal(t, "/dev/input/event9", devices[2].Path)
}

func TestFindKeyboard(t *testing.T) {
	devices := []Device{
		{Name: "mouse", Type: DeviceTypeMouse},
		{Name: "a-kbd", Type: DeviceTypeKeyboard},
		{Name: "b-kbd", Type: DeviceTypeKeyboard},
	}

	d, ok := FindKeyboard(devices, "")
	require.True(t, ok)
	assert.Equal(t, "a-kbd", d.Name)

	d, ok = FindKeyboard(devices, "b-kbd")
	require.True(t, ok)
	assert.Equal(t, "b-kbd", d.Name)

	d, ok = FindKeyboard(devices, "missing")
	require.True(t, ok)
	assert.Equal(t, "a-kbd", d.Name)

	_, ok = FindKeyboard(devices[:1], "")
	assert.False(t, ok)
}

func TestDeviceMonitorUpdate(t *testing.T) {
	dm, err := newDeviceMonitor(makeByID(t))
	require.NoError(t, err)
	defer dm.watcher.Close()

	kbd := Device{Name: "kbd", Path: "/dev/input/event1", Type: DeviceTypeKeyboard}

	events := dm.update([]Device{kbd}, nil)
	require.Len(t, events, 1)
	assert.Equal(t, DeviceAdded, events[0].Type)

	assert.Empty(t, dm.update([]Device{kbd}, nil))

	moved := kbd
	moved.Path = "/dev/input/event2"
	events = dm.update([]Device{moved}, nil)
	require.Len(t, events, 1)
	assert.Equal(t, DeviceChanged, events[0].Type)
	assert.Equal(t, "/dev/input/event2", events[0].Device.Path)

	// 同じ名前・同じパスで抜き差しされた場合
	events = dm.update([]Device{moved}, map[string]bool{moved.Name: true})
	require.Len(t, events, 2)
	assert.Equal(t, DeviceRemoved, events[0].Type)
	assert.Equal(t, DeviceAdded, events[1].Type)
	assert.Equal(t, moved, events[1].Device)

	events = dm.update(nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, DeviceRemoved, events[0].Type)
	assert.Empty(t, dm.GetConnectedDevices())
}

func TestDeviceMonitorWatchesDirectory(t *testing.T) {
	dir := makeByID(t)
	dm, err := newDeviceMonitor(dir)
	require.NoError(t, err)
	dm.debounce = 10 * time.Millisecond

	var mu sync.Mutex
	var got []DeviceEvent
	dm.RegisterCallback(func(ev DeviceEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	require.NoError(t, dm.Start())
	defer dm.Stop()

	link(t, dir, "usb-Test-event-kbd", "../event7")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, DeviceAdded, got[0].Type)
	assert.Equal(t, "usb-Test-event-kbd", got[0].Device.Name)
	mu.Unlock()
}

func TestDeviceMonitorQuickReplug(t *testing.T) {
	dir := makeByID(t)
	link(t, dir, "usb-kb-event-kbd", "../event3")

	dm, err := newDeviceMonitor(dir)
	require.NoError(t, err)
	dm.debounce = 200 * time.Millisecond

	require.NoError(t, dm.Start())
	defer dm.Stop()

	var mu sync.Mutex
	var got []DeviceEvent
	dm.RegisterCallback(func(ev DeviceEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	// デバウンス時間内に同じノードで再接続される
	require.NoError(t, os.Remove(filepath.Join(dir, "usb-kb-event-kbd")))
	link(t, dir, "usb-kb-event-kbd", "../event3")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, DeviceRemoved, got[0].Type)
	assert.Equal(t, DeviceAdded, got[1].Type)
	assert.Equal(t, "usb-kb-event-kbd", got[1].Device.Name)
}
