package replication

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tar-bin/udoris-core/internal/models/tetris"
)

// MaxCounter は更新カウンタの最大値です。0 は受信側の未初期化を表すため送信側は 1 から使います。
const MaxCounter = 63

const (
	headerLen  = 1 + 4 + 1 // カウンタ + ネクスト4つ + ホールド
	pairsInRow = tetris.Cols / 2
	graySolid  = 1
)

var (
	ErrTruncated    = errors.New("wire string is truncated")
	ErrInvalidChar  = errors.New("wire string contains an invalid character")
	ErrInvalidValue = errors.New("wire string contains an out-of-range value")
	ErrTrailingData = errors.New("wire string has trailing data")
)

// Snapshot は送信するボードの状態です。
// Next と Hold の 0 は「ピースなし」です。
type Snapshot struct {
	Field    tetris.Field
	Next     [4]tetris.BlockType
	Hold     tetris.BlockType
	GameOver bool
}

// View は受信側で復元した表示用の状態です。見えない5行は含みません。
type View struct {
	Counter  int                                        `json:"counter"`
	Next     [4]tetris.BlockType                        `json:"next"`
	Hold     tetris.BlockType                           `json:"hold"`
	GameOver bool                                       `json:"game_over"`
	Field    [tetris.VisibleRows][tetris.Cols]tetris.Cell `json:"field"`
}

// Tags はフィールドを整数タグ (ゴースト +8, 消去待ち +15) で返します。
func (v *View) Tags() [tetris.VisibleRows][tetris.Cols]int {
	var tags [tetris.VisibleRows][tetris.Cols]int
	for y, row := range v.Field {
		for x, c := range row {
			tags[y][x] = c.Tag()
		}
	}
	return tags
}

// InitialField は受信側の初期値として使う、何も置かれていない状態の文字列です。
func InitialField() string {
	return strings.Repeat(string(Alphabet[0]), headerLen+tetris.VisibleRows*pairsInRow)
}

// Encoder はボードの状態を送信用の文字列に変換します。送信ごとにカウンタを進めます。
type Encoder struct {
	counter int
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Counter は直前に送信したカウンタの値を返します。
func (e *Encoder) Counter() int {
	return e.counter
}

// Encode は s を1本の文字列に変換します。
func (e *Encoder) Encode(s Snapshot) string {
	if e.counter < MaxCounter {
		e.counter++
	} else {
		e.counter = 1
	}

	var sb strings.Builder
	sb.Grow(headerLen + 1 + tetris.VisibleRows*pairsInRow*2)

	sb.WriteByte(encodeValue(e.counter))
	for _, t := range s.Next {
		sb.WriteByte(encodeValue(int(t)))
	}
	sb.WriteByte(encodeValue(int(s.Hold)))
	if s.GameOver {
		sb.WriteByte(markerGameOver)
	}

	visible := s.Field.Visible()
	for _, row := range visible {
		for x := 0; x < tetris.Cols; x += 2 {
			writePair(&sb, row[x], row[x+1])
		}
	}
	return sb.String()
}

// splitCell はマスを生の種類とオーバーレイに分けます。
func splitCell(c tetris.Cell) (int, tetris.Overlay) {
	if c.Type < tetris.BlockI || c.Type > tetris.BlockT {
		return int(c.Type), tetris.OverlayNone
	}
	return int(c.Type), c.Overlay
}

func writePair(sb *strings.Builder, left, right tetris.Cell) {
	l, lo := splitCell(left)
	r, ro := splitCell(right)

	switch {
	case lo == tetris.OverlayGhost && ro == tetris.OverlayGhost:
		sb.WriteByte(markerBothGhost)
	case lo == tetris.OverlayGhost:
		sb.WriteByte(markerLeftGhost)
	case ro == tetris.OverlayGhost:
		sb.WriteByte(markerRightGhost)
	}
	switch {
	case lo == tetris.OverlayClear && ro == tetris.OverlayClear:
		sb.WriteByte(markerBothClear)
	case lo == tetris.OverlayClear:
		sb.WriteByte(markerLeftClear)
	case ro == tetris.OverlayClear:
		sb.WriteByte(markerRightClear)
	}

	// グレーを含む組は種類を捨てて埋まっているかどうかだけを送る
	gray := int(tetris.BlockGray)
	if l == gray || r == gray {
		l, r = solidBit(l == gray), solidBit(r == gray)
	}
	sb.WriteByte(encodeValue(l<<3 + r))
}

func solidBit(b bool) int {
	if b {
		return graySolid
	}
	return 0
}

// Decode は Encode で作られた文字列を View に復元します。
// 不正な文字列の場合は部分的な結果を返さずエラーを返します。
// カウンタが 0 の文字列 (InitialField など) は送信されたものではないので ErrInvalidValue です。
func Decode(s string) (View, error) {
	var v View
	if len(s) < headerLen {
		return View{}, fmt.Errorf("header: %w", ErrTruncated)
	}

	counter, ok := decodeValue(s[0])
	if !ok {
		return View{}, fmt.Errorf("counter %q: %w", s[0], ErrInvalidChar)
	}
	// 0 は未送信を表し、送信された文字列には現れない
	if counter == 0 {
		return View{}, fmt.Errorf("counter 0: %w", ErrInvalidValue)
	}
	v.Counter = counter

	for i := range v.Next {
		t, err := decodePieceType(s[1+i])
		if err != nil {
			return View{}, fmt.Errorf("next[%d]: %w", i, err)
		}
		v.Next[i] = t
	}
	hold, err := decodePieceType(s[5])
	if err != nil {
		return View{}, fmt.Errorf("hold: %w", err)
	}
	v.Hold = hold

	d := fieldDecoder{s: s, pos: headerLen}
	if d.pos < len(s) && s[d.pos] == markerGameOver {
		v.GameOver = true
		d.pos++
	}

	for y := 0; y < tetris.VisibleRows; y++ {
		for x := 0; x < tetris.Cols; x += 2 {
			left, right, err := d.pair(v.GameOver)
			if err != nil {
				return View{}, fmt.Errorf("field (%d,%d): %w", x, y, err)
			}
			v.Field[y][x] = left
			v.Field[y][x+1] = right
		}
	}
	if d.pos != len(s) {
		return View{}, fmt.Errorf("%d extra bytes: %w", len(s)-d.pos, ErrTrailingData)
	}
	return v, nil
}

func decodePieceType(c byte) (tetris.BlockType, error) {
	t, ok := decodeValue(c)
	if !ok {
		return 0, fmt.Errorf("%q: %w", c, ErrInvalidChar)
	}
	if t > int(tetris.BlockT) {
		return 0, fmt.Errorf("piece type %d: %w", t, ErrInvalidValue)
	}
	return tetris.BlockType(t), nil
}

type fieldDecoder struct {
	s   string
	pos int
}

func (d *fieldDecoder) peek() (byte, error) {
	if d.pos >= len(d.s) {
		return 0, ErrTruncated
	}
	return d.s[d.pos], nil
}

// pair は差分フラグと値の文字を読み、2マス分を返します。
func (d *fieldDecoder) pair(gameOver bool) (tetris.Cell, tetris.Cell, error) {
	var lo, ro tetris.Overlay
	if !gameOver {
		c, err := d.peek()
		if err != nil {
			return tetris.Cell{}, tetris.Cell{}, err
		}
		switch c {
		case markerLeftGhost:
			lo = tetris.OverlayGhost
		case markerRightGhost:
			ro = tetris.OverlayGhost
		case markerBothGhost:
			lo, ro = tetris.OverlayGhost, tetris.OverlayGhost
		}
		if lo != tetris.OverlayNone || ro != tetris.OverlayNone {
			d.pos++
		}

		c, err = d.peek()
		if err != nil {
			return tetris.Cell{}, tetris.Cell{}, err
		}
		var lc, rc bool
		switch c {
		case markerLeftClear:
			lc = true
		case markerRightClear:
			rc = true
		case markerBothClear:
			lc, rc = true, true
		}
		if (lc && lo != tetris.OverlayNone) || (rc && ro != tetris.OverlayNone) {
			return tetris.Cell{}, tetris.Cell{}, fmt.Errorf("ghost and clear on one cell: %w", ErrInvalidChar)
		}
		if lc || rc {
			d.pos++
		}
		if lc {
			lo = tetris.OverlayClear
		}
		if rc {
			ro = tetris.OverlayClear
		}
	}

	c, err := d.peek()
	if err != nil {
		return tetris.Cell{}, tetris.Cell{}, err
	}
	val, ok := decodeValue(c)
	if !ok {
		return tetris.Cell{}, tetris.Cell{}, fmt.Errorf("%q: %w", c, ErrInvalidChar)
	}
	d.pos++

	l, r := val>>3, val&7
	if gameOver {
		return silhouette(l), silhouette(r), nil
	}
	if (l == 0 && lo != tetris.OverlayNone) || (r == 0 && ro != tetris.OverlayNone) {
		return tetris.Cell{}, tetris.Cell{}, fmt.Errorf("overlay on an empty cell: %w", ErrInvalidValue)
	}
	return tetris.Cell{Type: tetris.BlockType(l), Overlay: lo},
		tetris.Cell{Type: tetris.BlockType(r), Overlay: ro}, nil
}

// silhouette はゲームオーバー時の値を「埋まっている=グレー」に畳みます。
func silhouette(v int) tetris.Cell {
	if v > 0 {
		return tetris.Cell{Type: tetris.BlockGray}
	}
	return tetris.Cell{}
}
