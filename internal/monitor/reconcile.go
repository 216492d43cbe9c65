// Package monitor はユーザーのゲーム状態の照合・集約・通知判定を提供する。
package monitor

import (
	"fmt"
	"time"

	"sgi/internal/domain"
)

// Reconcile は前回の既知状態と今回の観測スナップショットを比較して
// 状態遷移と新しい状態を導出する純粋関数。
//
// 観測はスライスの順に処理され、その順序が通知グループのメンバー順を決める。
// 既知状態に存在しないユーザーの観測は無視する(fetchとスナップショットの
// 間に削除されたユーザーはエラーではない)。観測に現れなかったユーザーは
// 新状態にそのまま引き継がれる。
//
// 不正な観測(GameIDのみでGameNameが空)が1件でもあれば状態を一切
// 変更せずにErrInvalidObservationを返す。
func Reconcile(
	old map[int64]domain.TrackedUser,
	observations []domain.PresenceObservation,
	now time.Time,
) ([]domain.Transition, map[int64]domain.TrackedUser, error) {
	for _, obs := range observations {
		if obs.GameID != "" && obs.GameName == "" {
			return nil, nil, fmt.Errorf("%w: steam_id=%d game_id=%s game_nameが空",
				domain.ErrInvalidObservation, obs.SteamID, obs.GameID)
		}
	}

	newState := make(map[int64]domain.TrackedUser, len(old))
	for id, u := range old {
		newState[id] = u
	}

	var transitions []domain.Transition
	for _, obs := range observations {
		user, ok := old[obs.SteamID]
		if !ok {
			continue
		}

		switch {
		case !user.Playing() && obs.GameID != "":
			// プレイ開始
			transitions = append(transitions, domain.Transition{
				User:       user,
				Kind:       domain.TransitionStarted,
				ToGameID:   obs.GameID,
				ToGameName: obs.GameName,
			})
			user.GameID = obs.GameID
			user.GameName = obs.GameName
			user.LastTransitionTime = now
			newState[obs.SteamID] = user

		case user.Playing() && obs.GameID == "":
			// プレイ終了。状態はクリアするがLastTransitionTimeは変えない
			transitions = append(transitions, domain.Transition{
				User:       user,
				Kind:       domain.TransitionStopped,
				FromGameID: user.GameID,
			})
			user.GameID = ""
			user.GameName = ""
			newState[obs.SteamID] = user

		case user.Playing() && obs.GameID != "" && user.GameID != obs.GameID:
			// 別のゲームに切替。A→Bは単一のChangedとして扱う
			transitions = append(transitions, domain.Transition{
				User:       user,
				Kind:       domain.TransitionChanged,
				FromGameID: user.GameID,
				ToGameID:   obs.GameID,
				ToGameName: obs.GameName,
			})
			user.GameID = obs.GameID
			user.GameName = obs.GameName
			user.LastTransitionTime = now
			newState[obs.SteamID] = user
		}
	}

	return transitions, newState, nil
}
