// Package domain はSGIの中核データモデルを提供する。
package domain

import "time"

// TransitionKind はゲーム状態遷移の種別を表す。
type TransitionKind = string

const (
	// TransitionStarted はゲームを開始した遷移。
	TransitionStarted TransitionKind = "started"

	// TransitionStopped はゲームを終了した遷移。
	TransitionStopped TransitionKind = "stopped"

	// TransitionChanged は別のゲームに切り替えた遷移。
	TransitionChanged TransitionKind = "changed"
)

// TrackedUser は監視対象ユーザーを表す。
// GameIDが空文字列の場合はプレイ中でないことを意味する。
// GameIDとGameNameは必ず両方設定されるか両方空になる。
type TrackedUser struct {
	SteamID       int64
	SlackUsername string
	GameID        string
	GameName      string

	// LastTransitionTime はプレイ開始/切替が最後に観測された時刻。
	// ポーリング間隔に依存するため正確な時刻ではない。
	LastTransitionTime time.Time
}

// Playing はユーザーが現在ゲームをプレイ中かどうかを返す。
func (u TrackedUser) Playing() bool {
	return u.GameID != ""
}

// PresenceObservation は1回のポーリングで観測したユーザーの状態。
// ポーリングごとに生成され、照合後に破棄される。
type PresenceObservation struct {
	SteamID  int64
	GameID   string
	GameName string
}

// Transition は前回ポーリングとの比較で検出された状態変化。
//
//   - TransitionStarted: FromGameIDが空、ToGameIDが非空
//   - TransitionStopped: FromGameIDが非空、ToGameIDが空
//   - TransitionChanged: 両方非空かつFromGameID != ToGameID
type Transition struct {
	User       TrackedUser
	Kind       TransitionKind
	FromGameID string
	ToGameID   string
	ToGameName string
}

// NotificationGroup は同一ポーリング内で同じゲームを開始/切替した
// ユーザーをまとめた通知単位。Usersは処理順を保持する。
type NotificationGroup struct {
	GameID   string
	GameName string
	Users    []string
	Text     string
}

// ServiceState はサービス全体の単一設定レコード。
type ServiceState struct {
	Silenced bool
	LastPoll time.Time
}

// CycleResult は1回のポーリングサイクルの実行結果。
type CycleResult struct {
	TransitionsApplied int
	NotificationsSent  int
}
