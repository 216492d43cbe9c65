package monitor

import "sgi/internal/domain"

// ShouldDeliver は通知を送信すべきかどうかを判定する。
// グループが1件以上あり、かつサービスがミュートされていない場合のみtrue。
// I/Oを伴わない純粋な述語で、ミュートポリシーを配送機構から分離する。
func ShouldDeliver(groups []domain.NotificationGroup, state domain.ServiceState) bool {
	return len(groups) > 0 && !state.Silenced
}
