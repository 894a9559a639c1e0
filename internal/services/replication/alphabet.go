package replication

// Alphabet は 0〜63 の値を1文字で表すための文字表です。並び順は通信フォーマットの一部です。
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// decodeTable は Alphabet の逆引き表です。Alphabet に含まれない文字は -1 です。
var decodeTable = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		t[Alphabet[i]] = int8(i)
	}
	return t
}()

func encodeValue(v int) byte {
	return Alphabet[v&0x3f]
}

func decodeValue(c byte) (int, bool) {
	v := decodeTable[c]
	return int(v), v >= 0
}

// 差分フラグの文字
const (
	markerLeftGhost  = '!'
	markerRightGhost = '@'
	markerBothGhost  = '#'
	markerLeftClear  = '$'
	markerRightClear = '%'
	markerBothClear  = '^'
	markerGameOver   = '&'
)
