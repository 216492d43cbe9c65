package domain

import "errors"

var (
	// ErrInvalidObservation は観測データの不整合(GameIDのみ設定等)。
	// サイクルは状態を書き込まずに中断する。
	ErrInvalidObservation = errors.New("invalid presence observation")

	// ErrFetchUnavailable はPresence APIへの到達失敗。次のtickで再試行する。
	ErrFetchUnavailable = errors.New("presence fetch unavailable")

	// ErrDeliveryFailed はWebhook送信失敗。状態の永続化はロールバックしない。
	ErrDeliveryFailed = errors.New("notification delivery failed")

	// ErrPersistence はストアの読み書き失敗。サイクル内の遷移は破棄される。
	ErrPersistence = errors.New("persistence failure")

	// ErrUserExists は既に登録済みのユーザーを追加しようとした。
	ErrUserExists = errors.New("user already added")

	// ErrUserNotFound は未登録のユーザーを指定した。
	ErrUserNotFound = errors.New("no such user")
)
