package monitor

import (
	"fmt"
	"strings"

	"sgi/internal/domain"
)

// Aggregate は遷移をゲームごとの通知グループにまとめる。
//
// 通知対象はStartedとChangedのみ。Stoppedは通知しない——開始と終了の
// 両方で通知するとゲームセッションごとに2回鳴ってスパムになるため。
// グループの順序はToGameIDの初出順、グループ内のユーザー順は遷移の
// 処理順をそのまま保持する(ソートしない)。
// GameNameはそのサイクルで最初に観測された遷移の値を使う。
func Aggregate(transitions []domain.Transition) []domain.NotificationGroup {
	var groups []domain.NotificationGroup
	index := make(map[string]int)

	for _, t := range transitions {
		if t.Kind != domain.TransitionStarted && t.Kind != domain.TransitionChanged {
			continue
		}

		i, ok := index[t.ToGameID]
		if !ok {
			groups = append(groups, domain.NotificationGroup{
				GameID:   t.ToGameID,
				GameName: t.ToGameName,
			})
			i = len(groups) - 1
			index[t.ToGameID] = i
		}
		groups[i].Users = append(groups[i].Users, t.User.SlackUsername)
	}

	for i := range groups {
		groups[i].Text = renderText(groups[i].Users, groups[i].GameName)
	}

	return groups
}

// renderText は人数に応じた通知テキストを生成する。
func renderText(users []string, gameName string) string {
	switch len(users) {
	case 1:
		return fmt.Sprintf("%s is now playing %s", users[0], gameName)
	case 2:
		return fmt.Sprintf("%s and %s are now playing %s", users[0], users[1], gameName)
	default:
		head := strings.Join(users[:len(users)-1], ", ")
		last := users[len(users)-1]
		return fmt.Sprintf("%s and %s are all now playing %s! Get in!", head, last, gameName)
	}
}
