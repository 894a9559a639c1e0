package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tar-bin/udoris-core/internal/models"
)

var ErrInvalidResult = errors.New("invalid result")

// ResultRepository はゲーム結果の保存と取得を定義するインターフェースです。
type ResultRepository interface {
	// CreateResult は新しいゲーム結果を記録します
	CreateResult(userID, name string, score int64) (*models.Result, error)

	// GetTopResults は上位N件の結果を取得します（ランキング用）
	GetTopResults(limit int) ([]models.ResultResponse, error)

	// GetUserBestScore は指定したユーザーの最高スコアを取得します
	GetUserBestScore(userID string) (*models.Result, error)

	// GetUserRanking は指定したユーザーの現在のランキング順位を取得します
	GetUserRanking(userID string) (*models.ResultResponse, error)
}

// memoryResultRepository はプロセス内に結果を保持する ResultRepository の実装です。
type memoryResultRepository struct {
	mu      sync.RWMutex
	results []models.Result
	nextID  int64
	now     func() time.Time
}

// NewMemoryResultRepository は空のリポジトリを作成します。再起動すると結果は消えます。
func NewMemoryResultRepository() ResultRepository {
	return &memoryResultRepository{nextID: 1, now: time.Now}
}

// CreateResult は新しいゲーム結果を記録します。
func (r *memoryResultRepository) CreateResult(userID, name string, score int64) (*models.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("ゲーム結果レコードの作成に失敗しました: user_id が空です: %w", ErrInvalidResult)
	}
	if score < 0 {
		return nil, fmt.Errorf("ゲーム結果レコードの作成に失敗しました: score=%d: %w", score, ErrInvalidResult)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result := models.Result{
		ID:        r.nextID,
		UserID:    userID,
		Name:      name,
		Score:     score,
		CreatedAt: r.now(),
	}
	r.nextID++
	r.results = append(r.results, result)
	return &result, nil
}

// ranked はスコアの降順、同点なら先に記録した順に並べたコピーを返します。
func (r *memoryResultRepository) ranked() []models.Result {
	out := make([]models.Result, len(r.results))
	copy(out, r.results)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetTopResults は上位N件の結果を取得します（ランキング用）。
func (r *memoryResultRepository) GetTopResults(limit int) ([]models.ResultResponse, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("ゲーム結果取得に失敗しました: limit=%d: %w", limit, ErrInvalidResult)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.ranked()
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	results := make([]models.ResultResponse, 0, len(sorted))
	for i, res := range sorted {
		results = append(results, toResponse(res, i+1))
	}
	return results, nil
}

// GetUserBestScore は指定したユーザーの最高スコアを取得します。
// 記録がない場合は nil, nil を返します。
func (r *memoryResultRepository) GetUserBestScore(userID string) (*models.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bestOf(userID), nil
}

func (r *memoryResultRepository) bestOf(userID string) *models.Result {
	var best *models.Result
	for i := range r.results {
		res := &r.results[i]
		if res.UserID != userID {
			continue
		}
		if best == nil || res.Score > best.Score {
			best = res
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// GetUserRanking は指定したユーザーの最高スコアが全体で何位かを返します。
func (r *memoryResultRepository) GetUserRanking(userID string) (*models.ResultResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := r.bestOf(userID)
	if best == nil {
		return nil, nil
	}

	rank := 1
	for _, res := range r.results {
		if res.Score > best.Score || (res.Score == best.Score && res.ID < best.ID) {
			rank++
		}
	}
	resp := toResponse(*best, rank)
	return &resp, nil
}

func toResponse(res models.Result, rank int) models.ResultResponse {
	return models.ResultResponse{
		ID:        res.ID,
		UserID:    res.UserID,
		Name:      res.Name,
		Score:     res.Score,
		CreatedAt: res.CreatedAt,
		Rank:      rank,
	}
}

// HighScore は全体の最高スコアです。記録がなければ 0 を返します。
func HighScore(repo ResultRepository) (int64, error) {
	top, err := repo.GetTopResults(1)
	if err != nil {
		return 0, fmt.Errorf("ハイスコアの取得に失敗しました: %w", err)
	}
	if len(top) == 0 {
		return 0, nil
	}
	return top[0].Score, nil
}
