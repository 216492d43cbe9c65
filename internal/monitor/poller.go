package monitor

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"sgi/internal/domain"
)

// Fetcher はPresence APIから観測スナップショットを取得する。
type Fetcher interface {
	FetchPresence(ctx context.Context, steamIDs []int64) (map[int64]domain.PresenceObservation, error)
}

// Store はユーザー状態とサービス設定の永続化を担う。
// SaveAllは渡されたユーザー集合に対してall-or-nothingでなければならない。
type Store interface {
	LoadAll(ctx context.Context) (map[int64]domain.TrackedUser, error)
	SaveAll(ctx context.Context, users map[int64]domain.TrackedUser) error
	LoadServiceState(ctx context.Context) (domain.ServiceState, error)
	SaveServiceState(ctx context.Context, state domain.ServiceState) error
}

// Notifier はレンダリング済みメッセージをチャットへ送信する。
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Poller は監視対象ユーザーの状態を定期的にポーリングし、
// 検出した遷移を通知する。サイクルは常に逐次実行される。
type Poller struct {
	fetcher  Fetcher
	store    Store
	notifier Notifier
	interval time.Duration
	now      func() time.Time
}

// NewPoller はPollerインスタンスを作成する。
func NewPoller(fetcher Fetcher, store Store, notifier Notifier, interval time.Duration) *Poller {
	return &Poller{
		fetcher:  fetcher,
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
	}
}

// Run はポーリングループを開始する。ctxがキャンセルされるまで実行する。
// サイクル中のエラーはログに残して次のtickで最初からやり直す。
// キャンセルはサイクルの合間、またはサイクル内のネットワーク呼び出しの
// タイムアウトを通じて反映される。
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("ポーリング開始", "interval", p.interval.String())

	p.runCycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ポーリング停止")
			return nil
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle は1サイクル実行し、結果とエラーをログに記録する。
func (p *Poller) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	log := slog.With("cycle", cycleID)

	result, err := p.RunPollCycle(ctx)
	if err != nil {
		log.Error("サイクル失敗", "error", err)
		return
	}

	if result.TransitionsApplied > 0 || result.NotificationsSent > 0 {
		log.Info("サイクル完了",
			"transitions", result.TransitionsApplied,
			"notifications", result.NotificationsSent)
	} else {
		log.Debug("サイクル完了(変化なし)")
	}
}

// RunPollCycle は1回のポーリングサイクルを実行する:
// fetch → reconcile → aggregate → gate → deliver → persist。
//
// fetch失敗は状態を変更せずに中断する。配送失敗はログに残すのみで、
// 観測済みの状態変化は通知の成否に関わらず永続化する(次サイクルで
// 同じ遷移を再処理しないため)。永続化失敗はサイクルの遷移を破棄して
// エラーを返し、次のtickが旧状態から再計算する。
func (p *Poller) RunPollCycle(ctx context.Context) (domain.CycleResult, error) {
	users, err := p.store.LoadAll(ctx)
	if err != nil {
		return domain.CycleResult{}, err
	}

	if len(users) == 0 {
		slog.Debug("監視対象ユーザーがいないためポーリングをスキップ")
		return domain.CycleResult{}, p.touchLastPoll(ctx)
	}

	// 観測の処理順はSteamID昇順で固定する。
	// この順序が通知グループ内のユーザー順を決める。
	ids := make([]int64, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	observed, err := p.fetcher.FetchPresence(ctx, ids)
	if err != nil {
		return domain.CycleResult{}, err
	}

	observations := make([]domain.PresenceObservation, 0, len(ids))
	for _, id := range ids {
		if obs, ok := observed[id]; ok {
			observations = append(observations, obs)
		}
	}

	transitions, newState, err := Reconcile(users, observations, p.now())
	if err != nil {
		return domain.CycleResult{}, err
	}

	for _, t := range transitions {
		switch t.Kind {
		case domain.TransitionStarted:
			slog.Info("プレイ開始を検出", "user", t.User.SlackUsername, "game", t.ToGameName)
		case domain.TransitionStopped:
			slog.Info("プレイ終了を検出", "user", t.User.SlackUsername, "game", t.User.GameName)
		case domain.TransitionChanged:
			slog.Info("ゲーム切替を検出", "user", t.User.SlackUsername, "game", t.ToGameName)
		}
	}

	groups := Aggregate(transitions)

	state, err := p.store.LoadServiceState(ctx)
	if err != nil {
		return domain.CycleResult{}, err
	}

	sent := 0
	if ShouldDeliver(groups, state) {
		for _, g := range groups {
			if err := p.notifier.Send(ctx, g.Text); err != nil {
				slog.Error("通知送信失敗", "game", g.GameName, "error", err)
				continue
			}
			sent++
		}
	} else if len(groups) > 0 {
		slog.Info("ミュート中のため通知を抑制", "groups", len(groups))
	}

	if err := p.store.SaveAll(ctx, newState); err != nil {
		return domain.CycleResult{}, err
	}

	if err := p.touchLastPoll(ctx); err != nil {
		return domain.CycleResult{}, err
	}

	return domain.CycleResult{
		TransitionsApplied: len(transitions),
		NotificationsSent:  sent,
	}, nil
}

// touchLastPoll はサービス設定の最終ポーリング時刻を更新する。
func (p *Poller) touchLastPoll(ctx context.Context) error {
	state, err := p.store.LoadServiceState(ctx)
	if err != nil {
		return err
	}
	state.LastPoll = p.now()
	return p.store.SaveServiceState(ctx, state)
}
