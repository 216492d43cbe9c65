// Package steam はSteam Web APIクライアントを提供する。
package steam

// playerSummariesResponse はGetPlayerSummariesの共通レスポンス構造。
type playerSummariesResponse struct {
	Response struct {
		Players []PlayerSummary `json:"players"`
	} `json:"response"`
}

// PlayerSummary はSteamプレイヤーの概要情報。
// GameIDが空の場合はゲームをプレイしていない。
type PlayerSummary struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	GameID      string `json:"gameid"`
	GameName    string `json:"gameextrainfo"`
}
