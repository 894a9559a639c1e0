package tetris

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tar-bin/udoris-core/internal/models/tetris"
)

const (
	MinStartLevel = 1
	MaxStartLevel = 15
	ExtendedLevel = 20 // Master / Vinegar の実効レベル
	GhostMaxLevel = 15 // これを超えるとゴーストを表示しない
	linesPerLevel = 10
	renStepSmall  = 50
	renStepLarge  = 100
	renLargeFrom  = 10
)

// MinGravityInterval は自然落下の間隔の下限です。
// 高レベルでは式の値が 1ns を下回るため、ここで止めます。
const MinGravityInterval = time.Microsecond

// GravityInterval はレベルに応じた自然落下の間隔を返します。
// interval = (0.8 - (L-1) * 0.007) ^ (L-1) 秒
// 底が 0 以下になるレベル (L >= 116) を含め、MinGravityInterval より短くはなりません。
func GravityInterval(level int) time.Duration {
	if level < 1 {
		level = 1
	}
	n := float64(level - 1)
	base := 0.8 - n*0.007
	if base <= 0 {
		return MinGravityInterval
	}
	interval := time.Duration(math.Pow(base, n) * float64(time.Second))
	if interval < MinGravityInterval {
		return MinGravityInterval
	}
	return interval
}

// ScoreEvent は1回のピース固定で得た得点の内訳です。
type ScoreEvent struct {
	Lines      int
	TSpin      tetris.TSpin
	Points     int64 // レベル倍率適用後の基本点
	RenBonus   int64
	BackToBack bool // この消去が B2B として加点されたか
	Label      string
}

// Total は基本点と REN ボーナスの合計です。
func (e ScoreEvent) Total() int64 {
	return e.Points + e.RenBonus
}

// Scorer はスコア・ライン数・レベル・REN・B2B を管理します。
type Scorer struct {
	Score          int64 `json:"score"`
	Lines          int   `json:"lines"`
	Level          int   `json:"level"`
	NextLevelCount int   `json:"next_level_count"`
	Ren            int   `json:"ren"`
	BackToBack     bool  `json:"back_to_back"`
}

// NewScorer は開始レベル level の新しいスコア状態を作ります。
func NewScorer(level int) Scorer {
	return Scorer{
		Level:          level,
		NextLevelCount: linesPerLevel,
	}
}

// ClearRows は消えた行の数だけレベルアップのカウントを進めます。
// 1行ごとにカウントを減らし、0 以下になったらレベルを上げて level*10 に戻します。
func (s *Scorer) ClearRows(n int) {
	for i := 0; i < n; i++ {
		s.NextLevelCount--
		if s.NextLevelCount <= 0 {
			s.Level++
			s.NextLevelCount = s.Level * linesPerLevel
		}
	}
	s.Lines += n
}

// Award は n 行消去と T-Spin 判定から得点を計算して加算します。
// 倍率には ClearRows 後のレベルを使います。n が 0 の場合は REN をリセットするだけです。
func (s *Scorer) Award(n int, tspin tetris.TSpin) ScoreEvent {
	ev := ScoreEvent{Lines: n, TSpin: tspin}
	if n <= 0 {
		s.Ren = 0
		return ev
	}

	raw, name, b2b := s.basePoints(n, tspin)
	ev.Points = raw * int64(s.Level)
	ev.BackToBack = b2b
	ev.Label = name + " +" + strconv.FormatInt(ev.Points, 10)

	s.Ren++
	if s.Ren > 1 {
		step := int64(renStepSmall)
		if s.Ren > renLargeFrom {
			step = renStepLarge
		}
		ev.RenBonus = int64(s.Ren-1) * step * int64(s.Level)
		ev.Label += fmt.Sprintf("\nRen x%d +%d", s.Ren-1, ev.RenBonus)
	}

	s.Score += ev.Total()
	return ev
}

// basePoints は倍率前の点数と表示名を返し、B2B フラグを更新します。
// 戻り値の b2b は今回の消去に B2B 加算が付いたかどうかです。
func (s *Scorer) basePoints(n int, tspin tetris.TSpin) (raw int64, name string, b2b bool) {
	prev := s.BackToBack
	switch {
	case n >= 4:
		s.BackToBack = true
		if prev {
			return 1200, "B2B Tetris", true
		}
		return 800, "Tetris", false

	case n == 3 && tspin != tetris.TSpinNone:
		s.BackToBack = true
		if prev {
			return 2400, "B2B T-Spin Triple", true
		}
		return 1600, "T-Spin Triple", false

	case n == 2 && tspin == tetris.TSpinFull:
		s.BackToBack = true
		if prev {
			return 1800, "B2B T-Spin Double", true
		}
		return 1200, "T-Spin Double", false

	case n == 2 && tspin == tetris.TSpinMini:
		s.BackToBack = true
		if prev {
			return 600, "B2B Mini T-Spin Double", true
		}
		return 400, "Mini T-Spin Double", false

	case n == 1 && tspin == tetris.TSpinFull:
		s.BackToBack = true
		if prev {
			return 1200, "B2B T-Spin Single", true
		}
		return 800, "T-Spin Single", false

	case n == 1 && tspin == tetris.TSpinMini:
		// Mini シングルは B2B を立てるが B2B 加算はない
		s.BackToBack = true
		return 200, "Mini T-Spin Single", false
	}

	s.BackToBack = false
	switch n {
	case 1:
		return 100, "Single", false
	case 2:
		return 300, "Double", false
	default:
		return 500, "Triple", false
	}
}

// Mode は開始レベル選択のモードです。
type Mode int

const (
	ModeNormal Mode = iota
	ModeMaster
	ModeVinegar
)

func (m Mode) String() string {
	switch m {
	case ModeMaster:
		return "master"
	case ModeVinegar:
		return "vinegar"
	default:
		return "normal"
	}
}

// StartLevel はタイトル画面で選ぶ開始レベルです。
// 1〜15 の次に Master、その次に Vinegar があります。どちらも実効レベルは 20 です。
type StartLevel struct {
	Level int  `json:"level"`
	Mode  Mode `json:"mode"`
}

// DefaultStartLevel はレベル 1 のノーマルモードです。
func DefaultStartLevel() StartLevel {
	return StartLevel{Level: MinStartLevel, Mode: ModeNormal}
}

// Effective はゲーム開始時のレベルを返します。
func (s StartLevel) Effective() int {
	if s.Mode != ModeNormal {
		return ExtendedLevel
	}
	return s.Level
}

// Label は表示用の文字列です ("1"〜"15", "M", "VM")。
func (s StartLevel) Label() string {
	switch s.Mode {
	case ModeMaster:
		return "M"
	case ModeVinegar:
		return "VM"
	default:
		return strconv.Itoa(s.Level)
	}
}

// Track はこのモードで流す BGM です。
func (s StartLevel) Track() Track {
	if s.Mode == ModeVinegar {
		return TrackMaster
	}
	return TrackMain
}

func (s StartLevel) CanDecrease() bool {
	return s.Mode != ModeNormal || s.Level > MinStartLevel
}

func (s StartLevel) CanIncrease() bool {
	return s.Mode != ModeVinegar
}

// Decrease は1段階下げた開始レベルを返します。
func (s StartLevel) Decrease() StartLevel {
	switch {
	case s.Mode == ModeVinegar:
		return StartLevel{Level: MaxStartLevel, Mode: ModeMaster}
	case s.Mode == ModeMaster:
		return StartLevel{Level: MaxStartLevel, Mode: ModeNormal}
	case s.Level > MinStartLevel:
		return StartLevel{Level: s.Level - 1, Mode: ModeNormal}
	}
	return s
}

// Increase は1段階上げた開始レベルを返します。
func (s StartLevel) Increase() StartLevel {
	switch {
	case s.Mode == ModeNormal && s.Level < MaxStartLevel:
		return StartLevel{Level: s.Level + 1, Mode: ModeNormal}
	case s.Mode == ModeNormal:
		return StartLevel{Level: MaxStartLevel, Mode: ModeMaster}
	case s.Mode == ModeMaster:
		return StartLevel{Level: MaxStartLevel, Mode: ModeVinegar}
	}
	return s
}
