package tetris

import (
	"math/rand"

	"github.com/tar-bin/udoris-core/internal/models/tetris"
)

// NextQueueSize はネクストに表示するピースの数です。
const NextQueueSize = 4

// PieceMachine は操作中のピース、ネクスト、ホールド、ゴーストを管理します。
// 衝突判定はすべて Board.CanPlace に任せます。
type PieceMachine struct {
	board      tetris.Board
	bag        *tetris.Bag
	current    *tetris.Piece
	next       [NextQueueSize]*tetris.Piece
	hold       *tetris.Piece
	holdUsed   bool
	tspin      tetris.TSpin
	ghostDirty bool
}

// NewPieceMachine は rng を乱数源とする PieceMachine を作り、最初のピースを用意します。
func NewPieceMachine(rng *rand.Rand) *PieceMachine {
	m := &PieceMachine{bag: tetris.NewBag(rng)}
	m.Reset()
	return m
}

// Reset はボードを空にし、バッグ・ネクスト・ホールドを新しいゲームの状態に戻します。
func (m *PieceMachine) Reset() {
	m.board.Reset()
	m.current = tetris.NewPiece(m.bag.DrawOpening())
	for i := range m.next {
		m.next[i] = tetris.NewPiece(m.bag.Draw())
	}
	m.hold = nil
	m.holdUsed = false
	m.tspin = tetris.TSpinNone
	m.ghostDirty = true
}

func (m *PieceMachine) Board() *tetris.Board {
	return &m.board
}

func (m *PieceMachine) Current() *tetris.Piece {
	return m.current
}

// HeldPiece はホールド中のピースを返します。空の場合は nil です。
func (m *PieceMachine) HeldPiece() *tetris.Piece {
	return m.hold
}

func (m *PieceMachine) HoldUsed() bool {
	return m.holdUsed
}

func (m *PieceMachine) TSpin() tetris.TSpin {
	return m.tspin
}

// ClearTSpin は T-Spin 判定を消します。自然落下・ソフトドロップ・ハードドロップで呼ばれます。
func (m *PieceMachine) ClearTSpin() {
	m.tspin = tetris.TSpinNone
}

// GhostDirty はゴーストの再計算が必要かどうかを返します。
func (m *PieceMachine) GhostDirty() bool {
	return m.ghostDirty
}

// NextTypes はネクストの種類を先頭から順に返します。
func (m *PieceMachine) NextTypes() [NextQueueSize]tetris.PieceType {
	var types [NextQueueSize]tetris.PieceType
	for i, p := range m.next {
		types[i] = p.Type
	}
	return types
}

// MoveLeft は操作中のピースを1マス左に動かします。
func (m *PieceMachine) MoveLeft() bool {
	left, _, _ := m.current.Shape.Extents()
	if m.current.X+left-1 < 0 {
		return false
	}
	return m.move(-1, 0)
}

// MoveRight は操作中のピースを1マス右に動かします。
func (m *PieceMachine) MoveRight() bool {
	_, right, _ := m.current.Shape.Extents()
	if m.current.X+right+1 >= tetris.Cols {
		return false
	}
	return m.move(1, 0)
}

// MoveDown は操作中のピースを1マス下に動かします。
func (m *PieceMachine) MoveDown() bool {
	_, _, bottom := m.current.Shape.Extents()
	if m.current.Y+bottom+1 >= tetris.Rows {
		return false
	}
	return m.move(0, 1)
}

func (m *PieceMachine) move(dx, dy int) bool {
	p := m.current
	if !m.board.CanPlace(p.Shape, p.X, p.Y, dx, dy) {
		return false
	}
	p.X += dx
	p.Y += dy
	m.ghostDirty = true
	return true
}

func (m *PieceMachine) RotateCW() bool {
	return m.rotate(tetris.Clockwise)
}

func (m *PieceMachine) RotateCCW() bool {
	return m.rotate(tetris.CounterClockwise)
}

// rotate は壁蹴り付きで回転し、成功したら T-Spin を判定し直します。
func (m *PieceMachine) rotate(dir tetris.Direction) bool {
	rotated, ok := tetris.Rotate(&m.board, m.current, dir)
	if !ok {
		return false
	}
	m.current = rotated
	m.tspin = tetris.DetectTSpin(&m.board, rotated)
	m.ghostDirty = true
	return true
}

// HardDrop は下に動けなくなるまで落とし、落ちた段数を返します。
func (m *PieceMachine) HardDrop() int {
	rows := 0
	for m.MoveDown() {
		m.tspin = tetris.TSpinNone
		rows++
	}
	return rows
}

// UpdateGhostY は操作中のピースの落下予測位置を計算し直します。
// level が GhostMaxLevel を超える場合はゴーストを表示しないので何もしません。
func (m *PieceMachine) UpdateGhostY(level int) {
	m.ghostDirty = false
	if level > GhostMaxLevel {
		return
	}
	p := m.current
	y := p.Y
	for m.board.CanPlace(p.Shape, p.X, y, 0, 1) {
		y++
	}
	p.GhostY = y
}

// Hold は操作中のピースをホールドします。
// 前回のピース取り出し以降にすでにホールドしていた場合は何も変えずに false を返します。
// ホールドから出てくるピースは出現位置・角度0の新しいピースです。
func (m *PieceMachine) Hold() bool {
	if m.holdUsed {
		return false
	}
	if m.hold == nil {
		m.hold = tetris.NewPiece(m.current.Type)
		m.shift()
	} else {
		m.current, m.hold = tetris.NewPiece(m.hold.Type), tetris.NewPiece(m.current.Type)
	}
	m.holdUsed = true
	m.tspin = tetris.TSpinNone
	m.ghostDirty = true
	return true
}

// Lock は操作中のピースをボードに固定し、揃った行を消去待ちにして返します。
func (m *PieceMachine) Lock() []int {
	m.board.Lock(m.current)
	return m.board.FindFilledRows()
}

// Pop はネクストの先頭を次の操作ピースにし、ホールドの使用済みフラグを戻します。
func (m *PieceMachine) Pop() {
	m.shift()
	m.holdUsed = false
	m.tspin = tetris.TSpinNone
}

func (m *PieceMachine) shift() {
	m.current = m.next[0]
	copy(m.next[:], m.next[1:])
	m.next[NextQueueSize-1] = tetris.NewPiece(m.bag.Draw())
	m.ghostDirty = true
}

// Fits は操作中のピースが今の位置で既存ブロックと重なっていないかを返します。
// 出現直後に重なっていればゲームオーバーです。
func (m *PieceMachine) Fits() bool {
	p := m.current
	return m.board.CanPlace(p.Shape, p.X, p.Y, 0, 0)
}

// ResetGhost はゴーストを出現位置の高さに戻します。
func (m *PieceMachine) ResetGhost() {
	m.current.GhostY = tetris.SpawnY
}

// Composite は表示用に合成したフィールドを返します。
func (m *PieceMachine) Composite(withPiece, withGhost bool) tetris.Field {
	return m.board.Composite(m.current, withPiece, withGhost)
}
