package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/char5742/keyball-inertia/internal/api"
	"github.com/char5742/keyball-inertia/internal/config"
	"github.com/char5742/keyball-inertia/internal/inertia"
	"github.com/char5742/keyball-inertia/internal/sim"
)

func main() {
	// コマンドライン引数の解析
	useApi := flag.Bool("api", false, "APIサーバーを併せて起動します")
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	port := flag.Int("port", 0, "APIサーバーのポート番号 (0の場合は設定ファイルの値)")
	openBrowser := flag.Bool("open", false, "起動後にモーション状態をブラウザで開きます (-api と併用)")
	debug := flag.Bool("debug", false, "デバッグログを出力します")
	simulate := flag.Bool("simulate", false, "デバイスを使わずに慣性移動をシミュレーションして表示します")
	hold := flag.Int("hold", 40, "シミュレーションでキーを押し続けるティック数")
	ticks := flag.Int("ticks", 500, "シミュレーションの最大ティック数")
	x := flag.Int("x", 1, "シミュレーションのX方向 (-1, 0, 1)")
	y := flag.Int("y", 0, "シミュレーションのY方向 (-1, 0, 1)")
	flag.Parse()

	// 設定ファイルパスの決定
	cfgPath := *configPath
	if cfgPath == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			cfgPath = p
		}
	}

	// 設定ファイルの読み込み
	cfg := config.DefaultConfig()
	var loadErr error
	if cfgPath != "" {
		cfg, loadErr = config.LoadConfig(cfgPath)
	}

	setupLogging(cfg.Log.Level, *debug)

	if loadErr != nil {
		log.Warn().Err(loadErr).Msg("設定ファイルの読み込みに失敗しました。デフォルト設定を使用します")
	} else if cfgPath != "" {
		log.Info().Str("path", cfgPath).Msg("設定ファイルを読み込みました")
	}

	if *simulate {
		dx, dy, err := parseDirection(*x, *y)
		if err != nil {
			log.Error().Err(err).Msg("方向の指定が不正です")
			os.Exit(2)
		}
		if err := runSimulation(cfg, dx, dy, *hold, *ticks); err != nil {
			log.Error().Err(err).Msg("シミュレーションに失敗しました")
			os.Exit(1)
		}
		return
	}

	if *port != 0 {
		cfg.API.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cfgPath, *useApi, *openBrowser); err != nil {
		log.Error().Err(err).Msg("起動に失敗しました")
		os.Exit(1)
	}
}

// run はサービスを起動し、シグナルを受け取るまで待機する
func run(ctx context.Context, cfg *config.Config, cfgPath string, useApi, openBrowser bool) error {
	service := api.NewPointerService(cfg)
	defer service.Engine().Close()

	if err := service.Start(); err != nil {
		// APIモードでは後から /api/service/start で起動できる
		if !useApi {
			return fmt.Errorf("サービスの起動に失敗しました: %w", err)
		}
		log.Warn().Err(err).Msg("サービスを起動できませんでした")
	}
	defer func() {
		if err := service.Stop(); err != nil && !errors.Is(err, api.ErrNotRunning) {
			log.Warn().Err(err).Msg("サービスの停止に失敗しました")
		}
	}()

	if cfgPath != "" {
		go func() {
			err := config.Watch(ctx, cfgPath, service.UpdateConfig)
			if err != nil {
				log.Warn().Err(err).Msg("設定ファイルの監視を開始できません")
			}
		}()
	}

	if useApi {
		server := api.NewServer(service, cfgPath, cfg.API.Port)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("APIサーバーの起動に失敗しました")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = server.Stop(shutdownCtx)
		}()

		if openBrowser {
			if err := browser.OpenURL(server.URL()); err != nil {
				log.Warn().Err(err).Msg("ブラウザを開けませんでした")
			}
		}
	}

	<-ctx.Done()
	log.Info().Msg("シャットダウンします...")
	return nil
}

// parseDirection は -x / -y の値を方向コードに変換する。-1, 0, 1 以外はエラー。
func parseDirection(x, y int) (int8, int8, error) {
	for _, v := range []int{x, y} {
		if v < -1 || v > 1 {
			return 0, 0, fmt.Errorf("%w: %d", inertia.ErrInvalidDirection, v)
		}
	}
	return int8(x), int8(y), nil
}

// runSimulation は慣性移動をシミュレーションして標準出力に表示する
func runSimulation(cfg *config.Config, x, y int8, hold, ticks int) error {
	in := cfg.InertiaFor(config.BindingConfig{X: x, Y: y})

	samples, err := sim.Run(in, hold, ticks)
	if err != nil {
		return err
	}
	if err := sim.Write(os.Stdout, samples); err != nil {
		return err
	}

	dx, dy := sim.Distance(samples)
	fmt.Printf("\n合計移動量: x=%d y=%d (%d ティック)\n", dx, dy, len(samples)-1)
	return nil
}

func setupLogging(level string, debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
