package tetris

import (
	"time"
)

// 操作タイミングの定数です。LockGrace 以外の単位はティックです。
const (
	MoveRepeatInterval = 3  // 押しっぱなし・ソフトドロップのリピート間隔
	MoveRepeatStart    = 15 // 最初の移動からリピートが始まるまでの追加待ち
	LockMoveLimit      = 15 // 接地中に移動・回転できる回数
	LockGrace          = 500 * time.Millisecond

	counterCeiling = 1 << 30
)

func clampCounter(v int) int {
	if v > counterCeiling {
		return counterCeiling
	}
	return v
}

type arrowState int

const (
	arrowNone arrowState = iota
	arrowPress
	arrowLongPress
)

// shifter は左右キーそれぞれの押下状態とリピートカウンタです。
type shifter struct {
	state     arrowState
	longPress bool
	counter   int
}

func (s *shifter) reset() {
	s.state = arrowNone
	s.longPress = false
	s.counter = 0
}

func (s *shifter) cancel() {
	s.state = arrowNone
	s.longPress = false
}

// tickPlaying はプレイ中の1ティックです。
// ポーズ、入力、ゴースト更新、自然落下、再描画の順に処理します。
func (e *Engine) tickPlaying(in Input) {
	if in.KeyDown(KeyPause) {
		e.emit(PlaySound{Cue: CuePause})
		e.emit(ShowPause{Visible: true})
		e.state = StatePause
		return
	}

	e.fallTime += e.tickDelta

	e.handlePlayingInput(in)
	if e.state == StatePiecePop {
		return
	}

	if e.pieces.GhostDirty() {
		e.pieces.UpdateGhostY(e.scorer.Level)
	}

	interval := GravityInterval(e.scorer.Level)
	if e.fallTime > interval {
		e.applyGravity(interval)
	}

	if e.needRedraw {
		e.needRedraw = false
		e.redrawBoard()
	}
}

// handlePlayingInput はホールド、回転、ハードドロップ、左右移動、ソフトドロップの順に入力を処理します。
// 取り出し中・消去中に受け付けた先行入力 (IRS) もここで適用します。
func (e *Engine) handlePlayingInput(in Input) {
	if in.KeyDown(KeyHold) || e.irsHold {
		e.irsHold = false
		if e.pieces.Hold() {
			e.emit(PlaySound{Cue: CueHold})
			e.needRedraw = true
			e.fallTime = 0
			e.moveCount = 0
			e.redrawHold()
			e.redrawNext()
		} else {
			e.emit(PlaySound{Cue: CueHoldBlocked})
		}
	}

	if in.KeyDown(KeyRotateCCW) || e.irsCCW {
		e.irsCCW = false
		if e.pieces.RotateCCW() {
			e.onRotated()
		}
	}
	if in.KeyDown(KeyRotateCW) || e.irsCW {
		e.irsCW = false
		if e.pieces.RotateCW() {
			e.onRotated()
		}
	}

	if in.KeyDown(KeyUp) {
		e.emit(PlaySound{Cue: CueHardDrop})
		if e.pieces.HardDrop() > 0 {
			e.fallTime = 0
			e.moveCount = 0
		}
		e.state = StatePiecePop
		return
	}

	e.autoShift(in, KeyLeft, &e.left, &e.right, e.pieces.MoveLeft)
	e.autoShift(in, KeyRight, &e.right, &e.left, e.pieces.MoveRight)

	if in.KeyHeld(KeyDown) && e.downCounter > MoveRepeatInterval && e.pieces.MoveDown() {
		e.emit(PlaySound{Cue: CueMove})
		e.needRedraw = true
		e.pieces.ClearTSpin()
		e.downCounter = 0
		e.fallTime = 0
		e.moveCount = 0
	}
	if in.KeyUp(KeyDown) {
		e.downCounter = 0
	}
}

func (e *Engine) onRotated() {
	e.emit(PlaySound{Cue: CueRotate})
	e.needRedraw = true
	e.fallTime = 0
	e.moveCount++
}

func (e *Engine) onShifted() {
	e.emit(PlaySound{Cue: CueMove})
	e.needRedraw = true
	e.moveCount++
	e.fallTime = 0
}

// autoShift は左右移動の DAS/ARR を処理します。
// 押した瞬間に1マス動き、MoveRepeatStart+MoveRepeatInterval+1 ティック後から MoveRepeatInterval+1 ティックごとに動きます。
// 片方を押すともう片方の押しっぱなし状態は解除されます。
func (e *Engine) autoShift(in Input, key Key, s, other *shifter, move func() bool) {
	if in.KeyDown(key) {
		s.state = arrowPress
		other.cancel()
	}
	if in.KeyHeld(key) && s.longPress {
		s.state = arrowLongPress
	}
	if in.KeyUp(key) {
		s.reset()
	}

	switch s.state {
	case arrowPress:
		if move() {
			e.onShifted()
			s.counter = -MoveRepeatStart
			s.longPress = true
		}
	case arrowLongPress:
		if s.counter > MoveRepeatInterval && move() {
			e.onShifted()
			s.counter = 0
		}
	}
}

// applyGravity は経過時間に応じてピースを落とします。
// 落ちられない場合はロック遅延と接地中の移動回数を見て、固定するかゲームオーバーにします。
func (e *Engine) applyGravity(interval time.Duration) {
	if interval < MinGravityInterval {
		interval = MinGravityInterval
	}
	count := int(e.fallTime / interval)
	for i := 0; i < count; i++ {
		if e.pieces.MoveDown() {
			e.needRedraw = true
			e.pieces.ClearTSpin()
			e.fallTime = 0
			e.moveCount = 0
			continue
		}

		if e.fallTime < interval+LockGrace && e.moveCount < LockMoveLimit {
			return
		}

		if !e.pieces.Fits() {
			e.enterGameOver()
		} else {
			e.state = StatePiecePop
		}
		return
	}
}

// bufferInput は取り出し中・消去中の入力を記録し、次のプレイ中ティックに持ち越します。
func (e *Engine) bufferInput(in Input) {
	if in.KeyDown(KeyRotateCCW) {
		e.irsCCW = true
		e.irsCW = false
	}
	if in.KeyUp(KeyRotateCCW) {
		e.irsCCW = false
	}
	if in.KeyDown(KeyRotateCW) {
		e.irsCW = true
		e.irsCCW = false
	}
	if in.KeyUp(KeyRotateCW) {
		e.irsCW = false
	}

	bufferShift(in, KeyLeft, &e.left, &e.right)
	bufferShift(in, KeyRight, &e.right, &e.left)

	if in.KeyUp(KeyDown) {
		e.downCounter = 0
	}

	if in.KeyDown(KeyHold) {
		e.irsHold = true
	}
	if in.KeyUp(KeyHold) {
		e.irsHold = false
	}
}

func bufferShift(in Input, key Key, s, other *shifter) {
	if in.KeyDown(key) {
		s.state = arrowPress
		s.longPress = true
		other.cancel()
	}
	if in.KeyHeld(key) && s.longPress {
		s.state = arrowLongPress
	}
	if in.KeyUp(key) {
		s.reset()
	}
}
