package event

import "syscall"

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント

	RelX = 0x0 // X軸の相対移動
	RelY = 0x1 // Y軸の相対移動

	SynReport  = 0 // イベント報告の同期
	SynDropped = 3 // カーネル側のバッファ溢れ

	MouseBtnLeft   = 0x110 // マウス左ボタン
	MouseBtnRight  = 0x111 // マウス右ボタン
	MouseBtnMiddle = 0x112 // マウス中ボタン
)

// キーコード（input-event-codes.hより）
const (
	KeyUp    = 103
	KeyLeft  = 105
	KeyRight = 106
	KeyDown  = 108
	KeyMax   = 0x2ff
)

// Event は入力イベントを表す構造体 (struct input_event)
type Event struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
}

// Size は64bit環境での input_event のサイズ
const Size = 24

// IsKey はキーイベントかどうかを返す
func (e Event) IsKey() bool {
	return e.Type == Key
}

// IsDropped は SYN_DROPPED かどうかを返す
func (e Event) IsDropped() bool {
	return e.Type == Syn && e.Code == SynDropped
}
