package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sgi/internal/domain"
)

const defaultBaseURL = "https://api.steampowered.com"

// API はSteam Web APIクライアント。
type API struct {
	key     string
	baseURL string
}

// NewAPI はAPIインスタンスを作成する。
func NewAPI(key string) *API {
	return &API{key: key, baseURL: defaultBaseURL}
}

// FetchPresence は指定ユーザーのプレイヤー概要を取得し、
// SteamIDをキーとする観測スナップショットに変換する。
// 到達失敗や不正レスポンスはErrFetchUnavailableとして返す。
func (a *API) FetchPresence(ctx context.Context, steamIDs []int64) (map[int64]domain.PresenceObservation, error) {
	if len(steamIDs) == 0 {
		return make(map[int64]domain.PresenceObservation), nil
	}

	ids := make([]string, len(steamIDs))
	for i, id := range steamIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	params := url.Values{
		"key":      {a.key},
		"steamids": {strings.Join(ids, ",")},
	}

	summaries, err := a.getPlayerSummaries(ctx, params)
	if err != nil {
		return nil, err
	}

	result := make(map[int64]domain.PresenceObservation, len(summaries))
	for _, s := range summaries {
		id, err := strconv.ParseInt(s.SteamID, 10, 64)
		if err != nil {
			slog.Warn("不正なsteamidを無視", "steamid", s.SteamID)
			continue
		}
		result[id] = domain.PresenceObservation{
			SteamID:  id,
			GameID:   s.GameID,
			GameName: s.GameName,
		}
	}

	slog.Debug("プレイヤー概要取得", "count", len(summaries))
	return result, nil
}

// getPlayerSummaries はGetPlayerSummariesエンドポイントを呼び出す。
func (a *API) getPlayerSummaries(ctx context.Context, params url.Values) ([]PlayerSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	reqURL := a.baseURL + "/ISteamUser/GetPlayerSummaries/v0002/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: APIリクエスト作成に失敗: %v", domain.ErrFetchUnavailable, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: APIリクエストに失敗: %v", domain.ErrFetchUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: APIレスポンスの読み込みに失敗: %v", domain.ErrFetchUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: Steam APIエラー: %d %s", domain.ErrFetchUnavailable, resp.StatusCode, string(body))
	}

	var apiResp playerSummariesResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: APIレスポンスの解析に失敗: %v", domain.ErrFetchUnavailable, err)
	}

	return apiResp.Response.Players, nil
}
