package tetris

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKey = errors.New("unknown key")

// Key はゲームが受け付ける入力キーです。
type Key int

const (
	KeyLeft Key = iota
	KeyRight
	KeyDown
	KeyUp // ハードドロップ
	KeyRotateCW
	KeyRotateCCW
	KeyHold
	KeyPause
	KeyStartLevelDown
	KeyStartLevelUp
	KeyStart
	keyCount
)

var keyNames = [keyCount]string{
	KeyLeft:           "left",
	KeyRight:          "right",
	KeyDown:           "down",
	KeyUp:             "up",
	KeyRotateCW:       "rotate_cw",
	KeyRotateCCW:      "rotate_ccw",
	KeyHold:           "hold",
	KeyPause:          "pause",
	KeyStartLevelDown: "start_level_down",
	KeyStartLevelUp:   "start_level_up",
	KeyStart:          "start",
}

func (k Key) String() string {
	if k < 0 || k >= keyCount {
		return fmt.Sprintf("Key(%d)", int(k))
	}
	return keyNames[k]
}

// ParseKey はクライアントから届いたキー名を Key に変換します。
func ParseKey(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range keyNames {
		if n == name {
			return Key(k), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownKey)
}

// Input は1ティック分の入力を問い合わせるためのインターフェースです。
// KeyDown と KeyUp はそのティックで状態が変わったとき、KeyHeld は押されている間 true を返します。
type Input interface {
	KeyDown(k Key) bool
	KeyUp(k Key) bool
	KeyHeld(k Key) bool
}

// KeySet はキーの集合です。
type KeySet uint16

func (s KeySet) Has(k Key) bool {
	return s&(1<<uint(k)) != 0
}

func (s KeySet) With(k Key) KeySet {
	return s | 1<<uint(k)
}

func (s KeySet) Without(k Key) KeySet {
	return s &^ (1 << uint(k))
}

// Frame は1ティック分の入力のスナップショットです。
type Frame struct {
	Down KeySet
	Up   KeySet
	Held KeySet
}

func (f Frame) KeyDown(k Key) bool { return f.Down.Has(k) }
func (f Frame) KeyUp(k Key) bool   { return f.Up.Has(k) }
func (f Frame) KeyHeld(k Key) bool { return f.Held.Has(k) }

// NoInput は何も押されていないフレームです。
var NoInput = Frame{}

// Keyboard は非同期に届く押下・解放イベントをティック単位の Frame にまとめます。
// 同じティック内で押して離されたキーは、そのティックでは押下として扱い、解放は次のティックに回します。
type Keyboard struct {
	held      KeySet
	down      KeySet
	up        KeySet
	pendingUp KeySet
}

func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Press はキーの押下を記録します。押しっぱなしの再送は無視します。
func (kb *Keyboard) Press(k Key) {
	if k < 0 || k >= keyCount || kb.held.Has(k) {
		return
	}
	kb.held = kb.held.With(k)
	kb.down = kb.down.With(k)
	kb.pendingUp = kb.pendingUp.Without(k)
}

// Release はキーの解放を記録します。
func (kb *Keyboard) Release(k Key) {
	if k < 0 || k >= keyCount || !kb.held.Has(k) {
		return
	}
	if kb.down.Has(k) {
		kb.pendingUp = kb.pendingUp.With(k)
		return
	}
	kb.held = kb.held.Without(k)
	kb.up = kb.up.With(k)
}

// Frame はこのティックの入力を返し、エッジ状態を次のティックに向けて進めます。
func (kb *Keyboard) Frame() Frame {
	f := Frame{Down: kb.down, Up: kb.up, Held: kb.held}

	kb.down, kb.up = 0, 0
	if kb.pendingUp != 0 {
		kb.held &^= kb.pendingUp
		kb.up = kb.pendingUp
		kb.pendingUp = 0
	}
	return f
}

// ReleaseAll はすべてのキーを離した状態にします。接続が切れたときに使います。
func (kb *Keyboard) ReleaseAll() {
	kb.up |= kb.held &^ kb.down
	kb.pendingUp |= kb.held & kb.down
	kb.held &= kb.down
}
