package replication

// Receiver は他のプレイヤーから届いた文字列を復元して保持します。
// カウンタが変わったときだけ復元し、壊れた文字列は無視して直前の状態を残します。
type Receiver struct {
	counter int
	view    View
	score   int64
}

// NewReceiver は未初期化 (カウンタ 0) の受信側を作ります。
func NewReceiver() *Receiver {
	return &Receiver{}
}

// Apply は文字列とスコアを取り込みます。
// 更新した場合は true を返し、文字列が壊れていた場合はエラーを返します。
func (r *Receiver) Apply(wire string, score int64) (bool, error) {
	if wire == "" {
		return false, ErrTruncated
	}
	if c, ok := decodeValue(wire[0]); ok && c == r.counter {
		return false, nil
	}

	view, err := Decode(wire)
	if err != nil {
		return false, err
	}
	r.counter = view.Counter
	r.view = view
	r.score = score
	return true, nil
}

// View は最後に正しく復元できた状態を返します。
func (r *Receiver) View() View {
	return r.view
}

func (r *Receiver) Score() int64 {
	return r.score
}

// Counter は最後に取り込んだ更新カウンタです。0 は未受信を表します。
func (r *Receiver) Counter() int {
	return r.counter
}
