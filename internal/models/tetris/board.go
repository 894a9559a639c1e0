package tetris

const (
	Cols        = 10 // ボードの幅
	Rows        = 25 // 見えない領域を含むボードの高さ
	HiddenRows  = 5  // ピースが生成される上部の見えない領域
	VisibleRows = Rows - HiddenRows
)

// BlockType はボード上のマスに置かれているブロックの種類を表します。
// 1〜7 は PieceType と同じ値です。
type BlockType int

const (
	BlockEmpty BlockType = iota // 0: 空のマス
	BlockI                      // 1
	BlockO                      // 2
	BlockS                      // 3
	BlockZ                      // 4
	BlockJ                      // 5
	BlockL                      // 6
	BlockT                      // 7
	BlockGray                   // 8: ゲームオーバー時のグレーアウト
)

// Overlay はマスの描画状態です。ゴーストと消去待ちは同時には持ちません。
type Overlay int

const (
	OverlayNone  Overlay = iota
	OverlayGhost         // 落下予測位置
	OverlayClear         // ライン消去アニメーション中
)

const (
	ghostTagOffset = 8
	clearTagOffset = 15
	maxTag         = BlockGray + clearTagOffset
)

// Cell はボードの1マスです。
// 通信用の整数タグ (0〜23) は Tag / CellFromTag でのみ相互変換します。
type Cell struct {
	Type    BlockType `json:"type"`
	Overlay Overlay   `json:"overlay,omitempty"`
}

// IsEmpty は衝突判定上の空マスかどうかを返します。
func (c Cell) IsEmpty() bool {
	return c.Type == BlockEmpty
}

// IsLocked は固定済みのピースブロック (タグ 1〜7) かどうかを返します。
// グレーや消去待ちのマスは含みません。
func (c Cell) IsLocked() bool {
	return c.Type >= BlockI && c.Type <= BlockT && c.Overlay == OverlayNone
}

// Tag はマスを通信用の整数タグに変換します。
func (c Cell) Tag() int {
	if c.Type == BlockEmpty {
		return 0
	}
	switch c.Overlay {
	case OverlayGhost:
		return int(c.Type) + ghostTagOffset
	case OverlayClear:
		return int(c.Type) + clearTagOffset
	default:
		return int(c.Type)
	}
}

// CellFromTag は整数タグからマスを復元します。範囲外のタグは false を返します。
func CellFromTag(tag int) (Cell, bool) {
	switch {
	case tag == 0:
		return Cell{}, true
	case tag >= int(BlockI) && tag <= int(BlockGray):
		return Cell{Type: BlockType(tag)}, true
	case tag > ghostTagOffset && tag <= int(BlockT)+ghostTagOffset:
		return Cell{Type: BlockType(tag - ghostTagOffset), Overlay: OverlayGhost}, true
	case tag > clearTagOffset && tag <= int(maxTag):
		return Cell{Type: BlockType(tag - clearTagOffset), Overlay: OverlayClear}, true
	default:
		return Cell{}, false
	}
}

// Field は描画・通信用に合成されたボードのスナップショットです。
type Field [Rows][Cols]Cell

// Visible は見えない領域を除いた 20 行を返します。
func (f *Field) Visible() [VisibleRows][Cols]Cell {
	var v [VisibleRows][Cols]Cell
	copy(v[:], f[HiddenRows:])
	return v
}

// Board はテトリスのゲームボードです。Board[y][x] でアクセスし、y は下向きに増えます。
type Board [Rows][Cols]Cell

// NewBoard は空のボードを返します。
func NewBoard() Board {
	var board Board
	return board
}

// Reset は全マスを空にします。
func (b *Board) Reset() {
	*b = Board{}
}

// At は (x, y) のマスを返します。範囲外なら false を返します。
func (b *Board) At(x, y int) (Cell, bool) {
	if x < 0 || x >= Cols || y < 0 || y >= Rows {
		return Cell{}, false
	}
	return b[y][x], true
}

// Set は (x, y) にマスを書き込みます。範囲外の書き込みは無視されます。
func (b *Board) Set(x, y int, c Cell) {
	if x < 0 || x >= Cols || y < 0 || y >= Rows {
		return
	}
	b[y][x] = c
}

// occupied は範囲外または空でないマスのとき true を返します。
func (b *Board) occupied(x, y int) bool {
	c, ok := b.At(x, y)
	return !ok || !c.IsEmpty()
}

// CanPlace は形状を (originX+offsetX, originY+offsetY) に置けるかを判定します。
// 移動・回転・ゴースト・ロックの判定はすべてここを通します。
//
// Returns:
//   bool: 置ける場合は true、壁や既存ブロックと衝突する場合は false
func (b *Board) CanPlace(s Shape, originX, originY, offsetX, offsetY int) bool {
	for i := 0; i < s.Size; i++ {
		for j := 0; j < s.Size; j++ {
			if !s.Cells[i][j] {
				continue
			}
			if b.occupied(originX+j+offsetX, originY+i+offsetY) {
				return false
			}
		}
	}
	return true
}

// Lock はピースをボードに固定します。
func (b *Board) Lock(p *Piece) {
	for _, block := range p.Blocks() {
		b.Set(p.X+block[0], p.Y+block[1], Cell{Type: p.Type.Block()})
	}
}

// FindFilledRows は揃った行を上から順に探し、消去待ち状態にして行番号を返します。
// 行はこの時点では削除せず、Pack で詰めます。
func (b *Board) FindFilledRows() []int {
	var rows []int
	for y := 0; y < Rows; y++ {
		filled := true
		for x := 0; x < Cols; x++ {
			if b[y][x].IsEmpty() {
				filled = false
				break
			}
		}
		if !filled {
			continue
		}
		for x := 0; x < Cols; x++ {
			b[y][x].Overlay = OverlayClear
		}
		rows = append(rows, y)
	}
	return rows
}

// Pack は固定ブロックを含む行だけを下から詰め直します。
// 消去待ちの行とグレーのマスはここで取り除かれます。
func (b *Board) Pack() {
	packed := NewBoard()
	destY := Rows - 1
	for y := Rows - 1; y >= 0; y-- {
		var row [Cols]Cell
		keep := false
		for x := 0; x < Cols; x++ {
			if b[y][x].IsLocked() {
				row[x] = b[y][x]
				keep = true
			}
		}
		if keep {
			packed[destY] = row
			destY--
		}
	}
	*b = packed
}

// GrayOutRow は下から rowFromBottom 番目の行の空でないマスをグレーにします。
func (b *Board) GrayOutRow(rowFromBottom int) {
	y := Rows - rowFromBottom - 1
	if y < 0 || y >= Rows {
		return
	}
	for x := 0; x < Cols; x++ {
		if !b[y][x].IsEmpty() {
			b[y][x] = Cell{Type: BlockGray}
		}
	}
}

// Composite はボードにゴーストとピースを合成した表示用フィールドを返します。
// p が nil の場合はボードのみを返します。
func (b *Board) Composite(p *Piece, withPiece, withGhost bool) Field {
	field := Field(*b)
	if p == nil {
		return field
	}
	blocks := p.Blocks()
	if withGhost {
		for _, block := range blocks {
			x, y := p.X+block[0], p.GhostY+block[1]
			if x >= 0 && x < Cols && y >= 0 && y < Rows {
				field[y][x] = Cell{Type: p.Type.Block(), Overlay: OverlayGhost}
			}
		}
	}
	if withPiece {
		for _, block := range blocks {
			x, y := p.X+block[0], p.Y+block[1]
			if x >= 0 && x < Cols && y >= 0 && y < Rows {
				field[y][x] = Cell{Type: p.Type.Block()}
			}
		}
	}
	return field
}
