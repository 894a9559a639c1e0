package tetris

import (
	"github.com/tar-bin/udoris-core/internal/models/tetris"
)

// Effect は1ティックの処理中に発生した描画・音声・送信の要求です。
// エンジンは描画状態を持たず、ホスト側がこれらを順番に処理します。
type Effect interface {
	// Kind は JSON で送るときのイベント名です。
	Kind() string
}

// Cue は効果音の名前です。
type Cue string

const (
	CueMove            Cue = "move"
	CueRotate          Cue = "rotate"
	CueHardDrop        Cue = "harddrop"
	CueLineClear       Cue = "lineclear"
	CueLineClearTetris Cue = "lineclear-tetris"
	CueHold            Cue = "hold"
	CueHoldBlocked     Cue = "hold-blocked"
	CueGameOver        Cue = "gameover"
	CueStart           Cue = "start"
	CuePause           Cue = "pause"
)

// Track は BGM の名前です。
type Track string

const (
	TrackMain   Track = "main"
	TrackMaster Track = "master"
)

type RedrawBoard struct {
	Field tetris.Field `json:"field"`
}

type RedrawNext struct {
	Next [4]tetris.PieceType `json:"next"`
}

// RedrawHold はホールド枠の再描画です。空のときは Held が false です。
type RedrawHold struct {
	Hold tetris.PieceType `json:"hold"`
	Held bool             `json:"held"`
}

type RedrawScore struct {
	Score          int64 `json:"score"`
	Level          int   `json:"level"`
	Lines          int   `json:"lines"`
	LocalHighScore int64 `json:"local_high_score"`
}

type RedrawGlobalHighScore struct {
	Score int64 `json:"score"`
}

type PlaySound struct {
	Cue Cue `json:"cue"`
}

type PlayMusic struct {
	Track Track `json:"track"`
}

// ShowScoreLog は直前の得点の内訳表示です。空文字は表示を消します。
type ShowScoreLog struct {
	Text string `json:"text"`
}

type ShowStartPrompt struct {
	Visible bool `json:"visible"`
}

type ShowPause struct {
	Visible bool `json:"visible"`
}

// RedrawStartLevel は開始レベル選択の表示です。
type RedrawStartLevel struct {
	Label       string `json:"label"`
	CanDecrease bool   `json:"can_decrease"`
	CanIncrease bool   `json:"can_increase"`
}

// Publish は観戦者へ送る盤面の文字列とスコアです。盤面を描画するたびに発生します。
type Publish struct {
	Wire  string `json:"wire"`
	Score int64  `json:"score"`
}

// GameEnded はゲームオーバーになった瞬間に1度だけ発生します。
type GameEnded struct {
	Score int64 `json:"score"`
	Level int   `json:"level"`
	Lines int   `json:"lines"`
}

func (RedrawBoard) Kind() string           { return "board" }
func (RedrawNext) Kind() string            { return "next" }
func (RedrawHold) Kind() string            { return "hold" }
func (RedrawScore) Kind() string           { return "score" }
func (RedrawGlobalHighScore) Kind() string { return "global_high_score" }
func (PlaySound) Kind() string             { return "sound" }
func (PlayMusic) Kind() string             { return "music" }
func (ShowScoreLog) Kind() string          { return "score_log" }
func (ShowStartPrompt) Kind() string       { return "start_prompt" }
func (ShowPause) Kind() string             { return "pause" }
func (RedrawStartLevel) Kind() string      { return "start_level" }
func (Publish) Kind() string               { return "field" }
func (GameEnded) Kind() string             { return "game_ended" }
