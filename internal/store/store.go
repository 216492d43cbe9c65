package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sgi/internal/domain"
)

// Store はSQLiteをバックエンドとするユーザー状態ストア。
type Store struct {
	DB *sql.DB
}

// New はStoreインスタンスを作成する。
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// opTimeout はストア操作1回あたりのタイムアウト。
const opTimeout = 5 * time.Second

// LoadAll は全監視対象ユーザーをSteamIDをキーとするmapで返す。
func (s *Store) LoadAll(ctx context.Context) (map[int64]domain.TrackedUser, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx,
		`SELECT steam_id, slack_username, game_id, game_name, last_transition_time FROM users`)
	if err != nil {
		return nil, fmt.Errorf("%w: ユーザー読み込みに失敗: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	users := make(map[int64]domain.TrackedUser)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: ユーザー行の読み取りに失敗: %v", domain.ErrPersistence, err)
		}
		users[u.SteamID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: ユーザー読み込みに失敗: %v", domain.ErrPersistence, err)
	}
	return users, nil
}

// ListUsers は全監視対象ユーザーを登録順で返す。CLI表示用。
func (s *Store) ListUsers(ctx context.Context) ([]domain.TrackedUser, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.DB.QueryContext(ctx,
		`SELECT steam_id, slack_username, game_id, game_name, last_transition_time FROM users ORDER BY created_at, steam_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: ユーザー読み込みに失敗: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var users []domain.TrackedUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: ユーザー行の読み取りに失敗: %v", domain.ErrPersistence, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: ユーザー読み込みに失敗: %v", domain.ErrPersistence, err)
	}
	return users, nil
}

// scanUser はusersテーブルの1行をTrackedUserに変換する。
func scanUser(rows *sql.Rows) (domain.TrackedUser, error) {
	var u domain.TrackedUser
	var gameID, gameName sql.NullString
	var lastTransition sql.NullTime
	if err := rows.Scan(&u.SteamID, &u.SlackUsername, &gameID, &gameName, &lastTransition); err != nil {
		return u, err
	}
	u.GameID = gameID.String
	u.GameName = gameName.String
	if lastTransition.Valid {
		u.LastTransitionTime = lastTransition.Time
	}
	return u, nil
}

// SaveAll は渡された全ユーザーのゲーム状態を単一トランザクションで更新する。
// 一部だけ書き込まれた状態が次サイクルから観測されることはない。
func (s *Store) SaveAll(ctx context.Context, users map[int64]domain.TrackedUser) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: トランザクション開始に失敗: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	for _, u := range users {
		_, err := tx.ExecContext(ctx,
			`UPDATE users SET game_id = ?, game_name = ?, last_transition_time = ? WHERE steam_id = ?`,
			nullString(u.GameID), nullString(u.GameName), nullTime(u.LastTransitionTime), u.SteamID)
		if err != nil {
			return fmt.Errorf("%w: ユーザー %d の更新に失敗: %v", domain.ErrPersistence, u.SteamID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: コミットに失敗: %v", domain.ErrPersistence, err)
	}
	return nil
}

// AddUser は監視対象ユーザーを追加する。
// 同じSlackユーザー名またはSteamIDが登録済みの場合はErrUserExistsを返す。
func (s *Store) AddUser(ctx context.Context, slackUsername string, steamID int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE slack_username = ? OR steam_id = ?`,
		slackUsername, steamID).Scan(&n)
	if err != nil {
		return fmt.Errorf("%w: 重複チェックに失敗: %v", domain.ErrPersistence, err)
	}
	if n > 0 {
		return domain.ErrUserExists
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO users(steam_id, slack_username, created_at) VALUES (?, ?, ?)`,
		steamID, slackUsername, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: ユーザー追加に失敗: %v", domain.ErrPersistence, err)
	}
	return nil
}

// RemoveUser はSlackユーザー名を指定して監視対象から削除する。
func (s *Store) RemoveUser(ctx context.Context, slackUsername string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE slack_username = ?`, slackUsername)
	if err != nil {
		return fmt.Errorf("%w: ユーザー削除に失敗: %v", domain.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: 削除結果の確認に失敗: %v", domain.ErrPersistence, err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// LoadServiceState はサービス設定の単一レコードを返す。
// まだ存在しない場合はデフォルト値で作成する。
func (s *Store) LoadServiceState(ctx context.Context) (domain.ServiceState, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var state domain.ServiceState
	var silenced int
	var lastPoll sql.NullTime
	err := s.DB.QueryRowContext(ctx,
		`SELECT silenced, last_poll FROM service_config WHERE id = 1`).Scan(&silenced, &lastPoll)
	if err == sql.ErrNoRows {
		if _, err := s.DB.ExecContext(ctx, `INSERT INTO service_config(id, silenced) VALUES (1, 0)`); err != nil {
			return state, fmt.Errorf("%w: サービス設定の初期化に失敗: %v", domain.ErrPersistence, err)
		}
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("%w: サービス設定の読み込みに失敗: %v", domain.ErrPersistence, err)
	}

	state.Silenced = silenced != 0
	if lastPoll.Valid {
		state.LastPoll = lastPoll.Time
	}
	return state, nil
}

// SaveServiceState はサービス設定の単一レコードを更新する。
func (s *Store) SaveServiceState(ctx context.Context, state domain.ServiceState) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO service_config(id, silenced, last_poll) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET silenced = excluded.silenced, last_poll = excluded.last_poll`,
		boolToInt(state.Silenced), nullTime(state.LastPoll))
	if err != nil {
		return fmt.Errorf("%w: サービス設定の保存に失敗: %v", domain.ErrPersistence, err)
	}
	return nil
}

// SetSilenced は通知ミュートフラグのみを更新する。
func (s *Store) SetSilenced(ctx context.Context, silenced bool) error {
	state, err := s.LoadServiceState(ctx)
	if err != nil {
		return err
	}
	state.Silenced = silenced
	return s.SaveServiceState(ctx, state)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
