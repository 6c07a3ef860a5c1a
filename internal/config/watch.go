package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce はエディタの連続書き込みをまとめる待ち時間
var reloadDebounce = 200 * time.Millisecond

// Watch は設定ファイルの変更を監視し、読み込みに成功するたびに onChange を呼ぶ。
// エディタによる置き換え保存にも対応するためディレクトリごと監視する。
// ctx がキャンセルされるまでブロックする。
func Watch(ctx context.Context, configPath string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	configPath = filepath.Clean(configPath)
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return err
	}

	logger := log.With().Str("component", "config").Str("path", configPath).Logger()
	logger.Info().Msg("設定ファイルの監視を開始します")

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != configPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)

		case <-timer.C:
			cfg, err := LoadConfig(configPath)
			if err != nil {
				logger.Warn().Err(err).Msg("設定ファイルの再読み込みに失敗しました")
				continue
			}
			logger.Info().Msg("設定ファイルを再読み込みしました")
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("設定ファイル監視エラー")
		}
	}
}
