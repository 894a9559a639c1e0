package tetris

import "math/rand"

// Bag は 7-bag 方式でピースを供給します。
// 7種類を使い切るまで同じ種類は出ず、空になると7種類を補充します。
type Bag struct {
	pool []PieceType
	rng  *rand.Rand
}

// NewBag は rng を使って抽選するバッグを作ります。
func NewBag(rng *rand.Rand) *Bag {
	b := &Bag{rng: rng}
	b.Reset()
	return b
}

// Reset はバッグを7種類すべてが入った状態に戻します。
func (b *Bag) Reset() {
	b.pool = append(b.pool[:0], AllPieceTypes[:]...)
}

// Remaining はバッグに残っているピースの数を返します。
func (b *Bag) Remaining() int {
	return len(b.pool)
}

// Draw はバッグからランダムに1つ取り出します。
func (b *Bag) Draw() PieceType {
	if len(b.pool) == 0 {
		b.Reset()
	}
	i := b.rng.Intn(len(b.pool))
	t := b.pool[i]
	b.pool = append(b.pool[:i], b.pool[i+1:]...)
	return t
}

// DrawOpening はゲーム開始時の最初のピースを取り出します。
// S, Z, O が出た場合はバッグを補充して引き直します。
func (b *Bag) DrawOpening() PieceType {
	for {
		b.Reset()
		t := b.Draw()
		if t != PieceS && t != PieceZ && t != PieceO {
			return t
		}
	}
}
