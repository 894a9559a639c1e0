package tetris

import "strings"

// PieceType はテトリミノの種類を表します。値は通信フォーマットの番号と一致します。
// 「ピースなし」は PieceType では表現せず、nil の *Piece で表します。
type PieceType int

const (
	PieceI PieceType = iota + 1 // 1: I-ミノ
	PieceO                      // 2: O-ミノ
	PieceS                      // 3: S-ミノ
	PieceZ                      // 4: Z-ミノ
	PieceJ                      // 5: J-ミノ
	PieceL                      // 6: L-ミノ
	PieceT                      // 7: T-ミノ
)

// AllPieceTypes は7種類すべてのピースです。バッグの補充順でもあります。
var AllPieceTypes = [...]PieceType{PieceI, PieceO, PieceS, PieceZ, PieceJ, PieceL, PieceT}

// ParsePieceType は整数をPieceTypeに変換します。1〜7 以外は false を返します。
func ParsePieceType(v int) (PieceType, bool) {
	t := PieceType(v)
	if t < PieceI || t > PieceT {
		return 0, false
	}
	return t, true
}

// Block はピースが固定されたときのブロックの種類を返します。
func (t PieceType) Block() BlockType {
	return BlockType(t)
}

func (t PieceType) String() string {
	switch t {
	case PieceI:
		return "I"
	case PieceO:
		return "O"
	case PieceS:
		return "S"
	case PieceZ:
		return "Z"
	case PieceJ:
		return "J"
	case PieceL:
		return "L"
	case PieceT:
		return "T"
	default:
		return "?"
	}
}

// Angle はピースの回転状態です。
type Angle int

const (
	Angle0   Angle = iota // 出現時
	Angle90               // R
	Angle180              // 2
	Angle270              // L
)

// Turn は dir 方向に90度回転した後の角度を返します。
func (a Angle) Turn(dir Direction) Angle {
	if dir == Clockwise {
		return (a + 1) % 4
	}
	return (a + 3) % 4
}

// Shape はピースの正方行列です。I と O は 4×4、それ以外は 3×3 を使います。
// Cells[row][col] で参照します。
type Shape struct {
	Size  int        `json:"size"`
	Cells [4][4]bool `json:"cells"`
}

// shapeOf は "X" を埋まったマスとする文字列の行から Shape を作ります。
func shapeOf(rows ...string) Shape {
	s := Shape{Size: len(rows)}
	for i, row := range rows {
		for j, ch := range row {
			s.Cells[i][j] = ch == 'X'
		}
	}
	return s
}

// String はデバッグ用に行列を "X" と "." で表します。
func (s Shape) String() string {
	var sb strings.Builder
	for i := 0; i < s.Size; i++ {
		if i > 0 {
			sb.WriteByte('/')
		}
		for j := 0; j < s.Size; j++ {
			if s.Cells[i][j] {
				sb.WriteByte('X')
			} else {
				sb.WriteByte('.')
			}
		}
	}
	return sb.String()
}

// Extents は埋まっているマスの左端・右端の列と最下段の行を返します。
func (s Shape) Extents() (left, right, bottom int) {
	left, right, bottom = s.Size, -1, -1
	for i := 0; i < s.Size; i++ {
		for j := 0; j < s.Size; j++ {
			if !s.Cells[i][j] {
				continue
			}
			left = min(left, j)
			right = max(right, j)
			bottom = max(bottom, i)
		}
	}
	return left, right, bottom
}

// RotateMatrixCW は行列を時計回りに回転させます。
func RotateMatrixCW(s Shape) Shape {
	r := Shape{Size: s.Size}
	for i := 0; i < s.Size; i++ {
		for j := 0; j < s.Size; j++ {
			r.Cells[j][s.Size-i-1] = s.Cells[i][j]
		}
	}
	return r
}

// RotateMatrixCCW は行列を反時計回りに回転させます。
func RotateMatrixCCW(s Shape) Shape {
	r := Shape{Size: s.Size}
	for i := 0; i < s.Size; i++ {
		for j := 0; j < s.Size; j++ {
			r.Cells[s.Size-j-1][i] = s.Cells[i][j]
		}
	}
	return r
}

// spawnShapes は出現時 (角度0) の行列です。
var spawnShapes = map[PieceType]Shape{
	PieceI: shapeOf("....", "XXXX", "....", "...."),
	PieceO: shapeOf("....", ".XX.", ".XX.", "...."),
	PieceS: shapeOf(".XX", "XX.", "..."),
	PieceZ: shapeOf("XX.", ".XX", "..."),
	PieceJ: shapeOf("..X", "XXX", "..."),
	PieceL: shapeOf("X..", "XXX", "..."),
	PieceT: shapeOf(".X.", "XXX", "..."),
}

// previewShapes はネクスト・ホールド表示用の 4×4 行列です。回転しません。
var previewShapes = map[PieceType]Shape{
	PieceI: shapeOf("....", "XXXX", "....", "...."),
	PieceO: shapeOf("....", ".XX.", ".XX.", "...."),
	PieceS: shapeOf("....", ".XX.", "XX..", "...."),
	PieceZ: shapeOf("....", "XX..", ".XX.", "...."),
	PieceJ: shapeOf("....", "..X.", "XXX.", "...."),
	PieceL: shapeOf("....", "X...", "XXX.", "...."),
	PieceT: shapeOf("....", ".X..", "XXX.", "...."),
}

// SpawnShape は角度0の行列を返します。
func SpawnShape(t PieceType) Shape {
	return spawnShapes[t]
}

// PreviewShape はプレビュー用の行列を返します。
func PreviewShape(t PieceType) Shape {
	return previewShapes[t]
}

const (
	SpawnX = 3
	SpawnY = 2
)

// Piece は操作中、ネクスト、ホールドのいずれかにあるテトリミノです。
type Piece struct {
	Type    PieceType `json:"type"`
	Angle   Angle     `json:"angle"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	GhostY  int       `json:"ghost_y"`
	Shape   Shape     `json:"shape"`
	Preview Shape     `json:"-"`
}

// NewPiece は出現位置・角度0の新しいピースを作ります。
func NewPiece(t PieceType) *Piece {
	return &Piece{
		Type:    t,
		Angle:   Angle0,
		X:       SpawnX,
		Y:       SpawnY,
		GhostY:  SpawnY,
		Shape:   SpawnShape(t),
		Preview: PreviewShape(t),
	}
}

// Blocks はピースを構成するブロックの相対座標 {x, y} を返します。
func (p *Piece) Blocks() [][2]int {
	blocks := make([][2]int, 0, 4)
	for i := 0; i < p.Shape.Size; i++ {
		for j := 0; j < p.Shape.Size; j++ {
			if p.Shape.Cells[i][j] {
				blocks = append(blocks, [2]int{j, i})
			}
		}
	}
	return blocks
}

// Clone はピースのコピーを返します。
func (p *Piece) Clone() *Piece {
	newP := *p
	return &newP
}
