package tetris

// Direction は回転方向です。
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

// TSpin は直前の回転によるTスピン判定です。
type TSpin int

const (
	TSpinNone TSpin = iota
	TSpinMini
	TSpinFull
)

func (t TSpin) String() string {
	switch t {
	case TSpinMini:
		return "mini"
	case TSpinFull:
		return "full"
	default:
		return "none"
	}
}

// Offset はキックテーブルの1エントリです。Y は上向きが正です。
type Offset struct {
	X, Y int
}

type pieceClass int

const (
	classStandard pieceClass = iota // J, L, S, T, Z
	classI
)

type kickKey struct {
	class pieceClass
	from  Angle
	dir   Direction
}

// kickTable は SRS の壁蹴りテーブルです。先頭は常に {0, 0} です。
var kickTable = map[kickKey][5]Offset{
	{classStandard, Angle0, Clockwise}:          {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{classStandard, Angle90, Clockwise}:         {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{classStandard, Angle180, Clockwise}:        {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
	{classStandard, Angle270, Clockwise}:        {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
	{classStandard, Angle0, CounterClockwise}:   {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
	{classStandard, Angle90, CounterClockwise}:  {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{classStandard, Angle180, CounterClockwise}: {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{classStandard, Angle270, CounterClockwise}: {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},

	{classI, Angle0, Clockwise}:          {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
	{classI, Angle90, Clockwise}:         {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
	{classI, Angle180, Clockwise}:        {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{classI, Angle270, Clockwise}:        {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{classI, Angle0, CounterClockwise}:   {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
	{classI, Angle90, CounterClockwise}:  {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{classI, Angle180, CounterClockwise}: {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{classI, Angle270, CounterClockwise}: {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
}

// Kicks は指定した回転で試す5つのオフセットを順番に返します。
func Kicks(t PieceType, from Angle, dir Direction) [5]Offset {
	class := classStandard
	if t == PieceI {
		class = classI
	}
	return kickTable[kickKey{class: class, from: from, dir: dir}]
}

// Rotate はピースを dir 方向に回転させたものを返します。
// 5つのキック候補をすべて試して置けなければ元のピースと false を返します。
// O-ミノは何も変えずに成功します。
func Rotate(b *Board, p *Piece, dir Direction) (*Piece, bool) {
	if p.Type == PieceO {
		return p, true
	}

	var rotated Shape
	if dir == Clockwise {
		rotated = RotateMatrixCW(p.Shape)
	} else {
		rotated = RotateMatrixCCW(p.Shape)
	}

	for _, kick := range Kicks(p.Type, p.Angle, dir) {
		// テーブルは上向きが正なので y を反転して適用する
		if !b.CanPlace(rotated, p.X, p.Y, kick.X, -kick.Y) {
			continue
		}
		next := p.Clone()
		next.Shape = rotated
		next.X += kick.X
		next.Y -= kick.Y
		next.Angle = p.Angle.Turn(dir)
		return next, true
	}
	return p, false
}

// miniCheckCells は角度ごとに Mini 判定に使う1マスの相対座標です。
var miniCheckCells = [4][2]int{
	Angle0:   {1, 2},
	Angle90:  {0, 1},
	Angle180: {1, 0},
	Angle270: {2, 1},
}

// DetectTSpin は回転直後のTミノの状態からTスピンを判定します。
// 3×3 の四隅のうち3つ以上が埋まっていればTスピンで、
// 角度ごとの判定マスが埋まっていれば Mini に格下げします。範囲外は埋まっている扱いです。
func DetectTSpin(b *Board, p *Piece) TSpin {
	if p.Type != PieceT {
		return TSpinNone
	}

	corners := 0
	for _, c := range [4][2]int{{0, 0}, {2, 0}, {0, 2}, {2, 2}} {
		if b.occupied(p.X+c[0], p.Y+c[1]) {
			corners++
		}
	}
	if corners < 3 {
		return TSpinNone
	}

	mini := miniCheckCells[p.Angle]
	if b.occupied(p.X+mini[0], p.Y+mini[1]) {
		return TSpinMini
	}
	return TSpinFull
}
