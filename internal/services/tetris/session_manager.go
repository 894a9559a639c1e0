package tetris

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kamstrup/intmap"
	"github.com/sirupsen/logrus"

	"github.com/tar-bin/udoris-core/internal/config"
	"github.com/tar-bin/udoris-core/internal/database"
	"github.com/tar-bin/udoris-core/internal/logger"
	"github.com/tar-bin/udoris-core/internal/services/replication"
)

var (
	ErrTableFull     = errors.New("all tables are in use")
	ErrTableNotFound = errors.New("table not found")
	ErrNotTableOwner = errors.New("table belongs to another player")
	ErrShuttingDown  = errors.New("session manager is shutting down")
)

const (
	sendBufferSize = 512
	readLimit      = 1024
	pongWait       = 300 * time.Second
	pingPeriod     = 60 * time.Second
	writeWait      = 10 * time.Second
)

// ClientRole は接続の種類です。
type ClientRole int

const (
	RolePlayer  ClientRole = iota // キー入力を送り、自分のゲームの Effect を受け取る
	RoleWatcher                   // 全卓の観戦用文字列を受け取る
)

// Client はWebSocket接続を持つ単一のクライアントを表します。
type Client struct {
	ID      string          // 接続ごとのID
	TableID string          // プレイヤーが遊んでいる卓のID (観戦者は空)
	Role    ClientRole      // プレイヤーか観戦者か
	Conn    *websocket.Conn // クライアントとの実際のWebSocketコネクション
	Send    chan []byte     // クライアントへメッセージを送信するためのバッファ付きチャネル
	closed  bool            // チャネルが閉じられたかどうかのフラグ
	mu      sync.Mutex      // closedフラグ保護用
}

func newClient(role ClientRole, tableID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:      uuid.New().String(),
		TableID: tableID,
		Role:    role,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
	}
}

// SafeSend は安全にチャネルにメッセージを送信します（closedチェック付き）
func (c *Client) SafeSend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Send <- message:
		return true
	default:
		return false // チャネルがフル
	}
}

// SafeClose は安全にチャネルを閉じます
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// KeyEvent はプレイヤーのキーの押下・解放です。
type KeyEvent struct {
	TableID string
	Key     Key
	Pressed bool
}

// keyMessage はプレイヤーから届くJSONメッセージです。
//
//	{"type":"key_down","key":"left"}
type keyMessage struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// FieldEvent は観戦者に送る1卓分の状態です。
type FieldEvent struct {
	Type    string `json:"type"`
	TableID string `json:"table_id"`
	Slot    int    `json:"slot"`
	Wire    string `json:"wire"`
	Score   int64  `json:"score"`
}

// TableInfo は卓一覧APIで返す情報です。
type TableInfo struct {
	TableID  string `json:"table_id"`
	Slot     int    `json:"slot"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Score    int64  `json:"score"`
	Level    int    `json:"level"`
	Lines    int    `json:"lines"`
}

// Table は1人分のゲームです。
type Table struct {
	ID       string
	Slot     int
	PlayerID string
	Name     string

	engine   *Engine
	keyboard *Keyboard
	receiver *replication.Receiver // 観戦APIが読む最後の状態
	player   *Client
}

// SessionManager は卓とWebSocketクライアント接続の全体を管理します。
// 全ての Engine は Run のゴルーチンからだけ進めます。
type SessionManager struct {
	tickRate           int
	maxTables          int
	highScoreSyncTicks int
	results            database.ResultRepository
	newRand            func() *rand.Rand

	tables   map[string]*Table         // tableID -> Table
	slots    *intmap.Map[int, string]  // 観戦プレビューの枠番号 -> tableID
	watchers map[string]*Client        // clientID -> 観戦クライアント
	ticks    int

	register   chan *Client
	unregister chan *Client
	keyEvents  chan KeyEvent
	done       chan struct{}
	doneOnce   sync.Once
	mu         sync.RWMutex
}

// NewSessionManager は新しい SessionManager を作成します。
// イベントループは Run で開始してください。
//
// Parameters:
//
//	cfg     : ティックレートや卓数などの設定
//	results : ゲーム結果の保存先
//
// Returns:
//
//	*SessionManager: 初期化されたセッションマネージャーのポインタ
func NewSessionManager(cfg *config.Config, results database.ResultRepository) *SessionManager {
	return &SessionManager{
		tickRate:           cfg.TickRate,
		maxTables:          cfg.MaxTables,
		highScoreSyncTicks: cfg.HighScoreSyncTicks,
		results:            results,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		tables:     make(map[string]*Table),
		slots:      intmap.New[int, string](cfg.MaxTables),
		watchers:   make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		keyEvents:  make(chan KeyEvent, 512),
		done:       make(chan struct{}),
	}
}

// Run は SessionManager のメインイベントループです。
// クライアントの登録/解除、キー入力、全卓のティック進行を1つのゴルーチンで処理します。
// ctx がキャンセルされると全クライアントを切断して nil を返します。
func (sm *SessionManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(sm.tickRate))
	defer ticker.Stop()

	logger.Log.WithField("tick_rate", sm.tickRate).Info("[SessionManager] イベントループを開始します")
	for {
		select {
		case client := <-sm.register:
			sm.handleRegister(client)

		case client := <-sm.unregister:
			sm.handleUnregister(client)

		case ev := <-sm.keyEvents:
			sm.applyKey(ev)

		case <-ticker.C:
			sm.step()

		case <-ctx.Done():
			sm.shutdown()
			return nil
		}
	}
}

// OpenTable は新しい卓を作成し、空いている観戦プレビュー枠を割り当てます。
//
// Returns:
//
//	string: 作成された卓のID
//	int   : 観戦プレビュー枠の番号
//	error : 全ての枠が埋まっている場合は ErrTableFull
func (sm *SessionManager) OpenTable(playerID, name string) (string, int, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.slots.Len() >= sm.maxTables {
		return "", 0, fmt.Errorf("player %s: %w", playerID, ErrTableFull)
	}
	slot := 0
	for sm.slots.Has(slot) {
		slot++
	}

	t := &Table{
		ID:       uuid.New().String(),
		Slot:     slot,
		PlayerID: playerID,
		Name:     name,
		engine: NewEngine(EngineOptions{
			Rand:               sm.newRand(),
			TickRate:           sm.tickRate,
			HighScoreSyncTicks: sm.highScoreSyncTicks,
		}),
		keyboard: NewKeyboard(),
		receiver: replication.NewReceiver(),
	}
	if high, err := database.HighScore(sm.results); err != nil {
		logger.Log.WithError(err).Warn("[SessionManager] ハイスコアを取得できませんでした")
	} else {
		t.engine.SetGlobalHighScore(high)
	}
	sm.tables[t.ID] = t
	sm.slots.Put(slot, t.ID)

	logger.Log.WithFields(logrus.Fields{
		"table_id":  t.ID,
		"slot":      slot,
		"player_id": playerID,
	}).Info("[SessionManager] 卓を作成しました")
	return t.ID, slot, nil
}

// CloseTable は卓を削除して枠を空けます。
func (sm *SessionManager) CloseTable(tableID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	t, ok := sm.tables[tableID]
	if !ok {
		return fmt.Errorf("close %s: %w", tableID, ErrTableNotFound)
	}
	sm.closeTableLocked(t)
	return nil
}

func (sm *SessionManager) closeTableLocked(t *Table) {
	delete(sm.tables, t.ID)
	sm.slots.Del(t.Slot)
	if t.player != nil {
		t.player.SafeClose()
		t.player = nil
	}
	sm.broadcastLocked(FieldEvent{
		Type:    "table_closed",
		TableID: t.ID,
		Slot:    t.Slot,
		Wire:    replication.InitialField(),
	})
	logger.Log.WithFields(logrus.Fields{"table_id": t.ID, "slot": t.Slot}).Info("[SessionManager] 卓を閉じました")
}

// CheckTable は卓が存在し、playerID のものであることを確かめます。
func (sm *SessionManager) CheckTable(tableID, playerID string) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	t, ok := sm.tables[tableID]
	if !ok {
		return fmt.Errorf("table %s: %w", tableID, ErrTableNotFound)
	}
	if t.PlayerID != playerID {
		return fmt.Errorf("table %s: %w", tableID, ErrNotTableOwner)
	}
	return nil
}

// ConnectPlayer はプレイヤーのWebSocket接続を卓に登録し、読み書きのゴルーチンを開始します。
func (sm *SessionManager) ConnectPlayer(tableID, playerID string, conn *websocket.Conn) error {
	if err := sm.CheckTable(tableID, playerID); err != nil {
		return err
	}
	return sm.attach(newClient(RolePlayer, tableID, conn))
}

// ConnectWatcher は観戦者のWebSocket接続を登録します。
func (sm *SessionManager) ConnectWatcher(conn *websocket.Conn) error {
	return sm.attach(newClient(RoleWatcher, "", conn))
}

func (sm *SessionManager) attach(client *Client) error {
	client.Conn.SetReadLimit(readLimit)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	select {
	case sm.register <- client:
	case <-sm.done:
		return ErrShuttingDown
	}

	go sm.readPump(client)
	go client.writePump()
	return nil
}

func (sm *SessionManager) handleRegister(client *Client) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	entry := logger.Log.WithField("client_id", client.ID)
	switch client.Role {
	case RolePlayer:
		t, ok := sm.tables[client.TableID]
		if !ok {
			entry.Warnf("[SessionManager] 存在しない卓 %s への接続を拒否します", client.TableID)
			client.SafeClose()
			return
		}
		if t.player != nil {
			entry.Infof("[SessionManager] 卓 %s の既存の接続を置き換えます", t.ID)
			t.player.SafeClose()
			// 古い接続で押されたままのキーを残さない
			t.keyboard.ReleaseAll()
		}
		t.player = client
		if t.engine.State() == StateNotStarted {
			sm.deliver(t, t.engine.Boot())
		}
		entry.WithField("table_id", t.ID).Info("[SessionManager] プレイヤーを登録しました")

	case RoleWatcher:
		sm.watchers[client.ID] = client
		// 途中から見始めても全卓の現在の状態が分かるようにする
		for _, t := range sm.tables {
			sm.sendJSON(client, sm.fieldEvent(t, t.engine.LastWire(), t.engine.Scorer().Score))
		}
		entry.Info("[SessionManager] 観戦者を登録しました")
	}
}

func (sm *SessionManager) handleUnregister(client *Client) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch client.Role {
	case RolePlayer:
		if t, ok := sm.tables[client.TableID]; ok && t.player == client {
			logger.Log.WithField("table_id", t.ID).Info("[SessionManager] プレイヤーが退出したため卓を閉じます")
			sm.closeTableLocked(t)
		}
	case RoleWatcher:
		if sm.watchers[client.ID] == client {
			delete(sm.watchers, client.ID)
			logger.Log.WithField("client_id", client.ID).Info("[SessionManager] 観戦者の登録を解除しました")
		}
	}
	client.SafeClose()
}

// SubmitKey はキー入力をイベントループに渡します。キューが一杯なら捨てて false を返します。
func (sm *SessionManager) SubmitKey(ev KeyEvent) bool {
	select {
	case sm.keyEvents <- ev:
		return true
	default:
		return false
	}
}

func (sm *SessionManager) applyKey(ev KeyEvent) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	t, ok := sm.tables[ev.TableID]
	if !ok {
		return
	}
	if ev.Pressed {
		t.keyboard.Press(ev.Key)
	} else {
		t.keyboard.Release(ev.Key)
	}
}

// step は全卓を1ティック進め、発生した Effect を配送します。
func (sm *SessionManager) step() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.ticks = clampCounter(sm.ticks + 1)
	syncHighScore := sm.ticks%sm.highScoreSyncTicks == 0
	var high int64
	if syncHighScore {
		var err error
		if high, err = database.HighScore(sm.results); err != nil {
			logger.Log.WithError(err).Warn("[SessionManager] ハイスコアの同期に失敗しました")
			syncHighScore = false
		}
	}

	for _, t := range sm.tables {
		if syncHighScore {
			t.engine.SetGlobalHighScore(high)
		}
		effects, err := tickTable(t)
		if err != nil {
			// 状態が壊れた卓は閉じて、他の卓とサーバーは動かし続ける
			logger.Log.WithError(err).WithField("table_id", t.ID).Error("[Table] ティック処理で異常が発生したため卓を閉じます")
			sm.closeTableLocked(t)
			continue
		}
		sm.deliver(t, effects)
	}
}

// tickTable は1卓を1ティック進めます。エンジン内の panic はエラーとして返します。
func tickTable(t *Table) (effects []Effect, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return t.engine.Tick(t.keyboard.Frame()), nil
}

// deliver は1卓分の Effect を観戦者・プレイヤー・結果の保存先に振り分けます。
func (sm *SessionManager) deliver(t *Table, effects []Effect) {
	for _, ef := range effects {
		switch ef := ef.(type) {
		case Publish:
			if _, err := t.receiver.Apply(ef.Wire, ef.Score); err != nil {
				logger.Log.WithError(err).WithField("table_id", t.ID).Error("[Table] 送信文字列を復元できません")
			}
			sm.broadcastLocked(sm.fieldEvent(t, ef.Wire, ef.Score))
			continue
		case GameEnded:
			sm.recordResult(t, ef)
		}
		if t.player != nil {
			if msg, err := effectMessage(ef); err != nil {
				logger.Log.WithError(err).Errorf("[Table] %s イベントのシリアライズに失敗しました", ef.Kind())
			} else if !t.player.SafeSend(msg) {
				logger.Log.WithField("table_id", t.ID).Debug("[Table] プレイヤーへの送信に失敗しました (チャネルが閉じているか満杯)")
			}
		}
	}
}

func (sm *SessionManager) recordResult(t *Table, ef GameEnded) {
	entry := logger.Log.WithFields(logrus.Fields{
		"table_id":  t.ID,
		"player_id": t.PlayerID,
		"score":     ef.Score,
		"level":     ef.Level,
		"lines":     ef.Lines,
	})
	if _, err := sm.results.CreateResult(t.PlayerID, t.Name, ef.Score); err != nil {
		entry.WithError(err).Error("[Table] ゲーム結果の保存に失敗しました")
		return
	}
	entry.Info("[Table] ゲーム終了")
}

func (sm *SessionManager) fieldEvent(t *Table, wire string, score int64) FieldEvent {
	return FieldEvent{Type: "field", TableID: t.ID, Slot: t.Slot, Wire: wire, Score: score}
}

func (sm *SessionManager) broadcastLocked(ev FieldEvent) {
	if len(sm.watchers) == 0 {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Log.WithError(err).Error("[SessionManager] 盤面イベントのシリアライズに失敗しました")
		return
	}
	for _, w := range sm.watchers {
		if !w.SafeSend(msg) {
			logger.Log.WithField("client_id", w.ID).Debug("[SessionManager] 観戦者への送信に失敗しました (チャネルが閉じているか満杯)")
		}
	}
}

func (sm *SessionManager) sendJSON(c *Client, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		logger.Log.WithError(err).Error("[SessionManager] メッセージのシリアライズに失敗しました")
		return
	}
	c.SafeSend(msg)
}

// effectMessage は Effect を {"type": Kind, ...フィールド} の形のJSONにします。
func effectMessage(ef Effect) ([]byte, error) {
	body, err := json.Marshal(ef)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ef.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ef.Kind(), err)
	}
	kind, _ := json.Marshal(ef.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

// Tables は開いている卓を枠番号順に返します。
func (sm *SessionManager) Tables() []TableInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]TableInfo, 0, sm.slots.Len())
	for slot := 0; slot < sm.maxTables; slot++ {
		id, ok := sm.slots.Get(slot)
		if !ok {
			continue
		}
		t := sm.tables[id]
		s := t.engine.Scorer()
		out = append(out, TableInfo{
			TableID:  t.ID,
			Slot:     t.Slot,
			PlayerID: t.PlayerID,
			Name:     t.Name,
			State:    t.engine.State().String(),
			Score:    s.Score,
			Level:    s.Level,
			Lines:    s.Lines,
		})
	}
	return out
}

// TableField は卓の最後に送信された状態を観戦者と同じ方法で復元したものを返します。
func (sm *SessionManager) TableField(tableID string) (replication.View, int64, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	t, ok := sm.tables[tableID]
	if !ok {
		return replication.View{}, 0, fmt.Errorf("field %s: %w", tableID, ErrTableNotFound)
	}
	return t.receiver.View(), t.receiver.Score(), nil
}

// readPump はクライアントからのWebSocketメッセージを読み込みます。
// プレイヤーのメッセージはキー入力として keyEvents チャネルに送り、観戦者のメッセージは読み捨てます。
func (sm *SessionManager) readPump(client *Client) {
	entry := logger.Log.WithField("client_id", client.ID)
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("[SessionManager] readPump で panic が発生しました: %v", r)
		}
		select {
		case sm.unregister <- client:
		case <-sm.done:
		}
		if err := client.Conn.Close(); err != nil {
			entry.Debugf("[SessionManager] WebSocket 接続のクローズに失敗しました: %v", err)
		}
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				entry.Warnf("[SessionManager] WebSocket が予期せず切断されました: %v", err)
			} else {
				entry.Debugf("[SessionManager] WebSocket が閉じられました: %v", err)
			}
			return
		}
		if client.Role != RolePlayer || len(message) == 0 {
			continue
		}

		ev, err := parseKeyMessage(client.TableID, message)
		if err != nil {
			entry.Warnf("[SessionManager] 入力メッセージを解析できません: %v", err)
			continue
		}
		if !sm.SubmitKey(ev) {
			entry.Warn("[SessionManager] キー入力のキューが満杯のため破棄します")
		}
	}
}

var errUnknownMessage = errors.New("unknown message type")

func parseKeyMessage(tableID string, raw []byte) (KeyEvent, error) {
	var msg keyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return KeyEvent{}, fmt.Errorf("unmarshal input: %w", err)
	}
	var pressed bool
	switch msg.Type {
	case "key_down":
		pressed = true
	case "key_up":
		pressed = false
	default:
		return KeyEvent{}, fmt.Errorf("%q: %w", msg.Type, errUnknownMessage)
	}
	key, err := ParseKey(msg.Key)
	if err != nil {
		return KeyEvent{}, err
	}
	return KeyEvent{TableID: tableID, Key: key, Pressed: pressed}, nil
}

// writePump は Client の Send チャネルからのメッセージをWebSocketコネクションに書き込みます。
// クライアントごとにこのゴルーチンが動作します。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			logger.Log.Errorf("[Client] %s の writePump で panic が発生しました: %v", c.ID, r)
		}
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// マネージャーがチャネルを閉じた
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Log.WithField("client_id", c.ID).Debugf("[Client] メッセージの書き込みに失敗しました: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.WithField("client_id", c.ID).Debugf("[Client] ping の送信に失敗しました: %v", err)
				return
			}
		}
	}
}

// shutdown は全クライアントを切断し、卓を破棄します。
func (sm *SessionManager) shutdown() {
	sm.doneOnce.Do(func() { close(sm.done) })

	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Log.Info("[SessionManager] シャットダウン開始...")
	for _, t := range sm.tables {
		if t.player != nil {
			t.player.SafeClose()
		}
	}
	for _, w := range sm.watchers {
		w.SafeClose()
	}
	sm.tables = make(map[string]*Table)
	sm.slots.Clear()
	sm.watchers = make(map[string]*Client)
	logger.Log.Info("[SessionManager] シャットダウン完了")
}
