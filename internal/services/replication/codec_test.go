package replication

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tar-bin/udoris-core/internal/models/tetris"
)

func TestAlphabet(t *testing.T) {
	require.Len(t, Alphabet, 64)
	for v := 0; v < 64; v++ {
		c := encodeValue(v)
		got, ok := decodeValue(c)
		require.True(t, ok)
		assert.Equal(t, v, got)
	}
	assert.Equal(t, byte('A'), encodeValue(0))
	assert.Equal(t, byte('a'), encodeValue(26))
	assert.Equal(t, byte('0'), encodeValue(52))
	assert.Equal(t, byte('/'), encodeValue(63))

	for _, c := range []byte{'!', '&', '-', '_', '=', ' ', 0x80} {
		_, ok := decodeValue(c)
		assert.False(t, ok, "%q", c)
	}
}

func TestEncoder_CounterWraps(t *testing.T) {
	enc := NewEncoder()
	var snap Snapshot
	for i := 1; i <= MaxCounter; i++ {
		wire := enc.Encode(snap)
		assert.Equal(t, Alphabet[i], wire[0])
	}
	assert.Equal(t, byte('B'), enc.Encode(snap)[0], "counter wraps from 63 to 1")
	assert.Equal(t, 1, enc.Counter())
}

func TestEncode_EmptyBoard(t *testing.T) {
	enc := NewEncoder()
	wire := enc.Encode(Snapshot{
		Next: [4]tetris.BlockType{tetris.BlockI, tetris.BlockO, tetris.BlockS, tetris.BlockZ},
	})
	assert.Equal(t, "BBCDEA"+strings.Repeat("A", 100), wire)
}

func TestEncode_Markers(t *testing.T) {
	var field tetris.Field
	top := tetris.HiddenRows
	ghostT := tetris.Cell{Type: tetris.BlockT, Overlay: tetris.OverlayGhost}
	clearJ := tetris.Cell{Type: tetris.BlockJ, Overlay: tetris.OverlayClear}
	field[top][0], field[top][1] = ghostT, ghostT
	field[top][2] = ghostT
	field[top][3] = tetris.Cell{Type: tetris.BlockI}
	field[top][5] = clearJ
	field[top][6], field[top][7] = clearJ, clearJ
	field[top][8] = ghostT
	field[top][9] = clearJ

	wire := NewEncoder().Encode(Snapshot{Field: field})
	// (T,T)=63 '/', (T,I)=57 '5', (0,J)=5 'F', (J,J)=45 't', (T,J)=61 '9'
	assert.Equal(t, "#/"+"!5"+"%F"+"^t"+"!%9", wire[headerLen:headerLen+11])
}

func TestEncode_GrayPairsCollapseToBits(t *testing.T) {
	var field tetris.Field
	bottom := tetris.Rows - 1
	field[bottom][0] = tetris.Cell{Type: tetris.BlockGray}
	field[bottom][1] = tetris.Cell{Type: tetris.BlockL}
	field[bottom][2] = tetris.Cell{Type: tetris.BlockGray}
	field[bottom][3] = tetris.Cell{Type: tetris.BlockGray}

	wire := NewEncoder().Encode(Snapshot{Field: field, GameOver: true})
	require.Equal(t, byte('&'), wire[headerLen])
	body := wire[headerLen+1:]
	require.Len(t, body, 100)
	// (8,L) -> (1,0) = 8 'I', (8,8) -> (1,1) = 9 'J'
	assert.Equal(t, "IJ", body[95:97])
}

func sampleSnapshot() Snapshot {
	board := tetris.NewBoard()
	for x := 0; x < tetris.Cols; x++ {
		if x != 4 {
			board[24][x] = tetris.Cell{Type: tetris.BlockZ}
		}
		board[23][x] = tetris.Cell{Type: tetris.BlockL}
	}
	board.FindFilledRows()
	board[22][0] = tetris.Cell{Type: tetris.BlockO}

	p := tetris.NewPiece(tetris.PieceT)
	p.Y = 8
	p.GhostY = 20
	field := board.Composite(p, true, true)

	return Snapshot{
		Field: field,
		Next:  [4]tetris.BlockType{tetris.BlockS, tetris.BlockZ, tetris.BlockJ, tetris.BlockI},
		Hold:  tetris.BlockL,
	}
}

// TestDecode_RoundTrip は Encode した文字列から同じ表示用フィールドが復元できることをテストします。
func TestDecode_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	wire := NewEncoder().Encode(snap)

	view, err := Decode(wire)
	require.NoError(t, err)

	assert.Equal(t, 1, view.Counter)
	assert.Equal(t, snap.Next, view.Next)
	assert.Equal(t, snap.Hold, view.Hold)
	assert.False(t, view.GameOver)
	if diff := cmp.Diff(snap.Field.Visible(), view.Field); diff != "" {
		t.Errorf("decoded field mismatch (-want +got):\n%s", diff)
	}

	tags := view.Tags()
	assert.Equal(t, int(tetris.BlockL)+15, tags[18][0])
	assert.Equal(t, int(tetris.BlockT)+8, tags[16][4])
}

func TestDecode_GameOverSilhouette(t *testing.T) {
	snap := sampleSnapshot()
	snap.GameOver = true
	board := tetris.NewBoard()
	board[24][1] = tetris.Cell{Type: tetris.BlockGray}
	board[23][2] = tetris.Cell{Type: tetris.BlockJ}
	snap.Field = board.Composite(nil, false, false)

	view, err := Decode(NewEncoder().Encode(snap))
	require.NoError(t, err)
	assert.True(t, view.GameOver)
	assert.Equal(t, tetris.Cell{Type: tetris.BlockGray}, view.Field[19][1])
	assert.Equal(t, tetris.Cell{Type: tetris.BlockGray}, view.Field[18][2])
	assert.Equal(t, tetris.Cell{}, view.Field[19][0])
}

func TestDecode_InitialField(t *testing.T) {
	wire := InitialField()
	assert.Len(t, wire, 106)

	_, err := Decode(wire)
	assert.ErrorIs(t, err, ErrInvalidValue, "counter 0 is never sent")

	// カウンタ以外は空の盤面として正しい
	view, err := Decode(string(Alphabet[1]) + wire[1:])
	require.NoError(t, err)
	assert.Equal(t, View{Counter: 1}, view)
}

func TestDecode_Malformed(t *testing.T) {
	valid := NewEncoder().Encode(sampleSnapshot())

	tests := []struct {
		name string
		wire string
		want error
	}{
		{"empty", "", ErrTruncated},
		{"header only", valid[:headerLen], ErrTruncated},
		{"cut in field", valid[:len(valid)-1], ErrTruncated},
		{"trailing", valid + "A", ErrTrailingData},
		{"bad counter", "-" + valid[1:], ErrInvalidChar},
		{"unsent counter", string(Alphabet[0]) + valid[1:], ErrInvalidValue},
		{"bad next", valid[:1] + "z" + valid[2:], ErrInvalidValue},
		{"bad field char", valid[:headerLen] + "*" + valid[headerLen+1:], ErrInvalidChar},
		{"ghost on empty", valid[:headerLen] + "!A" + valid[headerLen+1:], ErrInvalidValue},
		{"ghost and clear on one cell", valid[:headerLen] + "!$J" + valid[headerLen+1:], ErrInvalidChar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.wire)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecode_NeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	valid := NewEncoder().Encode(sampleSnapshot())
	charset := Alphabet + "!@#$%^&*"

	assert.NotPanics(t, func() {
		for i := 0; i <= len(valid); i++ {
			_, _ = Decode(valid[:i])
		}
		for i := 0; i < 2000; i++ {
			b := []byte(valid)
			for j := 0; j < 1+rng.Intn(4); j++ {
				b[rng.Intn(len(b))] = charset[rng.Intn(len(charset))]
			}
			_, _ = Decode(string(b))
		}
	})
}
