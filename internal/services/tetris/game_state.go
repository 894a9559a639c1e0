package tetris

import (
	"math/rand"
	"time"

	"github.com/tar-bin/udoris-core/internal/models/tetris"
	"github.com/tar-bin/udoris-core/internal/services/replication"
)

// GameState はゲーム全体の状態です。
type GameState int

const (
	StateNotStarted GameState = iota
	StateInitializeAndStart
	StatePlaying
	StatePiecePop
	StateLineClear
	StateGameOver
	StatePause
)

func (s GameState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInitializeAndStart:
		return "initialize"
	case StatePlaying:
		return "playing"
	case StatePiecePop:
		return "piece_pop"
	case StateLineClear:
		return "line_clear"
	case StateGameOver:
		return "game_over"
	case StatePause:
		return "pause"
	default:
		return "unknown"
	}
}

const (
	DefaultTickRate           = 60
	DefaultHighScoreSyncTicks = 60
	LineClearDelay            = 24 // 消去アニメーションのティック数
	GameOverDelay             = 60 // グレーアウト演出のティック数
)

// EngineOptions は Engine の生成オプションです。ゼロ値の項目には既定値を使います。
type EngineOptions struct {
	Rand               *rand.Rand
	TickRate           int
	HighScoreSyncTicks int
}

// Engine は1人分のゲームを進めるステートマシンです。
// ロックを持たないため、1つのゴルーチンからだけ操作してください。
type Engine struct {
	state      GameState
	pieces     *PieceMachine
	scorer     Scorer
	startLevel StartLevel
	encoder    *replication.Encoder

	tickDelta  time.Duration
	fallTime   time.Duration // 自然落下とロック遅延の共通タイマー
	moveCount  int           // 接地中の移動・回転回数
	needRedraw bool

	lineClearTicks int
	gameOverTicks  int

	left, right shifter
	downCounter int
	irsCW       bool
	irsCCW      bool
	irsHold     bool

	localHighScore     int64
	globalHighScore    int64
	globalChanged      bool
	highScoreTicks     int
	highScoreSyncTicks int

	lastWire string
	effects  []Effect
}

// NewEngine は開始前 (StateNotStarted) のエンジンを作ります。
func NewEngine(opts EngineOptions) *Engine {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	tickRate := opts.TickRate
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	syncTicks := opts.HighScoreSyncTicks
	if syncTicks <= 0 {
		syncTicks = DefaultHighScoreSyncTicks
	}

	e := &Engine{
		state:              StateNotStarted,
		pieces:             NewPieceMachine(rng),
		startLevel:         DefaultStartLevel(),
		encoder:            replication.NewEncoder(),
		tickDelta:          time.Second / time.Duration(tickRate),
		highScoreSyncTicks: syncTicks,
		lastWire:           replication.InitialField(),
	}
	e.scorer = NewScorer(e.startLevel.Effective())
	return e
}

// Boot はタイトル画面の初期表示に必要な Effect を返します。
func (e *Engine) Boot() []Effect {
	e.effects = nil
	e.emit(ShowStartPrompt{Visible: true})
	e.redrawStartLevel()
	e.redrawScore()
	e.emit(PlayMusic{Track: e.startLevel.Track()})
	return e.flush()
}

// Tick はゲームを1ティック進め、その間に発生した Effect を順番に返します。
func (e *Engine) Tick(in Input) []Effect {
	if in == nil {
		in = NoInput
	}
	e.effects = nil

	switch e.state {
	case StateNotStarted:
		e.tickNotStarted(in)
	case StateInitializeAndStart:
		e.tickInitializeAndStart()
	case StatePlaying:
		e.tickPlaying(in)
	case StatePiecePop:
		e.tickPiecePop(in)
	case StateLineClear:
		e.tickLineClear(in)
	case StateGameOver:
		e.tickGameOver()
	case StatePause:
		e.tickPause(in)
	}

	if e.highScoreTicks > e.highScoreSyncTicks {
		e.syncGlobalHighScore()
	}
	e.advanceCounters()
	return e.flush()
}

// advanceCounters はティックの最後に状態ごとのカウンタを進めます。
func (e *Engine) advanceCounters() {
	switch e.state {
	case StateLineClear:
		e.lineClearTicks = clampCounter(e.lineClearTicks + 1)
	case StatePlaying:
		e.left.counter = clampCounter(e.left.counter + 1)
		e.right.counter = clampCounter(e.right.counter + 1)
		e.downCounter = clampCounter(e.downCounter + 1)
	}
	e.highScoreTicks = clampCounter(e.highScoreTicks + 1)
}

func (e *Engine) tickNotStarted(in Input) {
	if in.KeyDown(KeyStartLevelDown) && e.startLevel.CanDecrease() {
		e.changeStartLevel(e.startLevel.Decrease())
	}
	if in.KeyDown(KeyStartLevelUp) && e.startLevel.CanIncrease() {
		e.changeStartLevel(e.startLevel.Increase())
	}
	if in.KeyDown(KeyStart) {
		e.state = StateInitializeAndStart
	}
}

func (e *Engine) changeStartLevel(next StartLevel) {
	prevTrack := e.startLevel.Track()
	e.startLevel = next
	e.redrawStartLevel()
	if next.Track() != prevTrack {
		e.emit(PlayMusic{Track: next.Track()})
	}
}

func (e *Engine) tickInitializeAndStart() {
	e.emit(PlaySound{Cue: CueStart})
	e.emit(ShowStartPrompt{Visible: false})

	e.resetGame()
	e.pieces.UpdateGhostY(e.scorer.Level)

	e.redrawBoard()
	e.redrawNext()
	e.redrawHold()
	e.redrawScore()
	e.emit(ShowScoreLog{Text: ""})
	e.emit(PlayMusic{Track: e.startLevel.Track()})
	e.state = StatePlaying
}

// resetGame は新しいゲームのためにボード・ピース・カウンタを初期化します。
func (e *Engine) resetGame() {
	e.pieces.Reset()
	e.scorer = NewScorer(e.startLevel.Effective())
	e.fallTime = 0
	e.moveCount = 0
	e.needRedraw = false
	e.lineClearTicks = 0
	e.gameOverTicks = 0
	e.left = shifter{}
	e.right = shifter{}
	e.downCounter = 0
	e.irsCW, e.irsCCW, e.irsHold = false, false, false
	e.highScoreTicks = 0
}

func (e *Engine) tickPiecePop(in Input) {
	e.updatePiece()
	e.bufferInput(in)
	if e.state == StateLineClear {
		return
	}
	e.pieces.UpdateGhostY(e.scorer.Level)
	e.redrawBoard()
	e.redrawScore()
	e.state = StatePlaying
}

// updatePiece はピースを固定し、消去・得点計算をしてから次のピースを取り出します。
func (e *Engine) updatePiece() {
	tspin := e.pieces.TSpin()
	n := len(e.pieces.Lock())

	e.scorer.ClearRows(n)
	ev := e.scorer.Award(n, tspin)
	if n > 0 {
		e.emit(ShowScoreLog{Text: ev.Label})
		e.emit(PlaySound{Cue: lineClearCue(n, tspin)})
		e.redrawBoardWithoutPiece()
		e.state = StateLineClear
	}

	e.fallTime = 0
	e.moveCount = 0
	e.pieces.Pop()
	e.redrawNext()
}

// lineClearCue は消去した行数と T-Spin から効果音を選びます。
func lineClearCue(n int, tspin tetris.TSpin) Cue {
	switch {
	case n >= 4:
		return CueLineClearTetris
	case n == 3 && tspin != tetris.TSpinNone:
		return CueLineClearTetris
	case n < 3 && tspin == tetris.TSpinFull:
		return CueLineClearTetris
	default:
		return CueLineClear
	}
}

func (e *Engine) tickLineClear(in Input) {
	e.bufferInput(in)
	if e.lineClearTicks <= LineClearDelay {
		return
	}
	e.lineClearTicks = 0
	e.pieces.Board().Pack()
	e.pieces.UpdateGhostY(e.scorer.Level)
	e.redrawBoard()
	e.redrawScore()
	e.state = StatePlaying
}

func (e *Engine) tickGameOver() {
	if e.gameOverTicks > GameOverDelay {
		e.emit(ShowStartPrompt{Visible: true})
		e.redrawStartLevel()
		e.state = StateNotStarted
		return
	}
	e.pieces.Board().GrayOutRow(e.gameOverTicks)
	e.gameOverTicks++
	e.redrawBoardWithoutPiece()
}

func (e *Engine) tickPause(in Input) {
	if in.KeyDown(KeyPause) {
		e.emit(PlaySound{Cue: CuePause})
		e.emit(ShowPause{Visible: false})
		e.state = StatePlaying
	}
}

// enterGameOver はゲームオーバーに遷移します。
func (e *Engine) enterGameOver() {
	e.emit(PlaySound{Cue: CueGameOver})
	e.pieces.ResetGhost()
	e.state = StateGameOver
	e.emit(GameEnded{Score: e.scorer.Score, Level: e.scorer.Level, Lines: e.scorer.Lines})
}

func (e *Engine) redrawBoard() {
	field := e.pieces.Composite(true, e.scorer.Level <= GhostMaxLevel)
	e.emit(RedrawBoard{Field: field})
	e.publish(field)
}

func (e *Engine) redrawBoardWithoutPiece() {
	field := e.pieces.Board().Composite(nil, false, false)
	e.emit(RedrawBoard{Field: field})
	e.publish(field)
}

// publish は盤面を観戦用の文字列にしてスコアと一緒に送ります。
func (e *Engine) publish(field tetris.Field) {
	snap := replication.Snapshot{
		Field:    field,
		GameOver: e.state == StateGameOver,
	}
	for i, t := range e.pieces.NextTypes() {
		snap.Next[i] = t.Block()
	}
	if hold := e.pieces.HeldPiece(); hold != nil {
		snap.Hold = hold.Type.Block()
	}

	e.lastWire = e.encoder.Encode(snap)
	e.emit(Publish{Wire: e.lastWire, Score: e.scorer.Score})
}

func (e *Engine) redrawNext() {
	e.emit(RedrawNext{Next: e.pieces.NextTypes()})
}

func (e *Engine) redrawHold() {
	hold := e.pieces.HeldPiece()
	if hold == nil {
		e.emit(RedrawHold{})
		return
	}
	e.emit(RedrawHold{Hold: hold.Type, Held: true})
}

// redrawScore はスコア表示を更新します。ローカルハイスコアもここで更新します。
func (e *Engine) redrawScore() {
	if e.scorer.Score > e.localHighScore {
		e.localHighScore = e.scorer.Score
	}
	e.emit(RedrawScore{
		Score:          e.scorer.Score,
		Level:          e.scorer.Level,
		Lines:          e.scorer.Lines,
		LocalHighScore: e.localHighScore,
	})
}

func (e *Engine) redrawStartLevel() {
	e.emit(RedrawStartLevel{
		Label:       e.startLevel.Label(),
		CanDecrease: e.startLevel.CanDecrease(),
		CanIncrease: e.startLevel.CanIncrease(),
	})
}

// syncGlobalHighScore は自分のスコアがグローバルハイスコアを超えていれば更新します。
func (e *Engine) syncGlobalHighScore() {
	if e.scorer.Score > e.globalHighScore {
		e.globalHighScore = e.scorer.Score
		e.globalChanged = true
	}
	if e.globalChanged {
		e.globalChanged = false
		e.emit(RedrawGlobalHighScore{Score: e.globalHighScore})
	}
	e.highScoreTicks = 0
}

// SetGlobalHighScore は他のプレイヤーを含めたハイスコアを反映します。
// 表示は次の同期タイミングで更新されます。
func (e *Engine) SetGlobalHighScore(score int64) {
	if score > e.globalHighScore {
		e.globalHighScore = score
		e.globalChanged = true
	}
}

func (e *Engine) emit(ef Effect) {
	e.effects = append(e.effects, ef)
}

func (e *Engine) flush() []Effect {
	out := e.effects
	e.effects = nil
	return out
}

func (e *Engine) State() GameState {
	return e.state
}

func (e *Engine) Scorer() Scorer {
	return e.scorer
}

func (e *Engine) StartLevel() StartLevel {
	return e.startLevel
}

func (e *Engine) Pieces() *PieceMachine {
	return e.pieces
}

func (e *Engine) LocalHighScore() int64 {
	return e.localHighScore
}

func (e *Engine) GlobalHighScore() int64 {
	return e.globalHighScore
}

// LastWire は最後に送信した観戦用の文字列です。まだ送信していなければ InitialField です。
func (e *Engine) LastWire() string {
	return e.lastWire
}
