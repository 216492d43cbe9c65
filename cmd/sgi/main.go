// Package main はSGI(Slack Game Interface)のエントリーポイントを提供する。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sgi/internal/config"
	"sgi/internal/monitor"
	"sgi/internal/server"
	"sgi/internal/slack"
	"sgi/internal/steam"
	"sgi/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "sgi",
	Short: "Slack Game Interface",
	Long: `SGIは登録ユーザーのSteamプレイ状況を定期的にポーリングし、
ゲームの開始・切替をSlackチャンネルに通知する。`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "設定ファイルのパス (デフォルト: ./config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(muteCmd())
	rootCmd.AddCommand(unmuteCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(testMessageCmd())
}

// loadConfig は設定を読み込みロガーを初期化する。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

// openStore はデータベースを開きマイグレーションを適用する。
func openStore(cfg *config.Config) (*store.Store, func(), error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store.New(db), func() { _ = db.Close() }, nil
}

// newNotifier は設定からSlackクライアントを組み立てる。
func newNotifier(cfg *config.Config) *slack.Client {
	return slack.NewClient(cfg.Slack.WebhookURL, cfg.Slack.Channel, cfg.Slack.BotUsername, cfg.Slack.BotIconURL)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "ポーリングを開始する",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(config.LogInfo)
			slog.Info("SGI 起動中...")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			poller := monitor.NewPoller(
				steam.NewAPI(cfg.Steam.APIKey),
				st,
				newNotifier(cfg),
				time.Duration(cfg.Polling.IntervalSeconds)*time.Second,
			)
			return poller.Run(ctx)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "スラッシュコマンドAPIサーバーを起動する",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(config.LogInfo)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.VerificationToken == "" {
				return fmt.Errorf("server.verificationTokenは必須です")
			}

			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			handler := server.New(server.Config{
				Store:             st,
				Notifier:          newNotifier(cfg),
				VerificationToken: cfg.Server.VerificationToken,
			})

			srv := &http.Server{
				Addr:              cfg.Server.ListenAddr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			slog.Info("APIサーバー起動", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "監視対象ユーザーを管理する"}
	cmd.AddCommand(userAddCmd())
	cmd.AddCommand(userRemoveCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <slack-username> <steam-id>",
		Short: "ユーザーを追加する",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			steamID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("steam-idが数値ではありません: %s", args[1])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.AddUser(cmd.Context(), args[0], steamID); err != nil {
				return err
			}
			fmt.Printf("%s を追加しました\n", args[0])
			return nil
		},
	}
}

func userRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <slack-username>",
		Short: "ユーザーを削除する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.RemoveUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s を削除しました\n", args[0])
			return nil
		},
	}
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "ユーザー一覧を表示する",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			users, err := st.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("登録されているユーザーはいません")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Slack", "Steam ID", "プレイ中", "最終遷移"})
			for _, u := range users {
				playing := "-"
				if u.Playing() {
					playing = u.GameName
				}
				last := "-"
				if !u.LastTransitionTime.IsZero() {
					last = u.LastTransitionTime.Local().Format(time.RFC3339)
				}
				t.AppendRow(table.Row{u.SlackUsername, u.SteamID, playing, last})
			}
			t.Render()
			return nil
		},
	}
}

func muteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mute",
		Short: "通知をミュートする",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSilenced(cmd.Context(), true)
		},
	}
}

func unmuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmute",
		Short: "ミュートを解除する",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSilenced(cmd.Context(), false)
		},
	}
}

func setSilenced(ctx context.Context, silenced bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.SetSilenced(ctx, silenced); err != nil {
		return err
	}
	if silenced {
		fmt.Println("通知をミュートしました")
	} else {
		fmt.Println("ミュートを解除しました")
	}
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "サービス状態を表示する",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			state, err := st.LoadServiceState(cmd.Context())
			if err != nil {
				return err
			}
			users, err := st.ListUsers(cmd.Context())
			if err != nil {
				return err
			}

			lastPoll := "-"
			if !state.LastPoll.IsZero() {
				lastPoll = state.LastPoll.Local().Format(time.RFC3339)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendRow(table.Row{"ミュート", state.Silenced})
			t.AppendRow(table.Row{"最終ポーリング", lastPoll})
			t.AppendRow(table.Row{"ユーザー数", len(users)})
			t.Render()
			return nil
		},
	}
}

func testMessageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-message",
		Short: "Slackにテストメッセージを送信する",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := newNotifier(cfg).Send(cmd.Context(), "This is a test announcement. Do not be alarmed."); err != nil {
				return err
			}
			fmt.Println("テストメッセージを送信しました")
			return nil
		},
	}
}
