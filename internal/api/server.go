package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/char5742/keyball-inertia/internal/config"
)

// Server はAPIサーバーを表す構造体
type Server struct {
	server     *http.Server
	service    *PointerService
	configPath string
	mutex      sync.RWMutex
	port       int
	log        zerolog.Logger
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(service *PointerService, configPath string, port int) *Server {
	return &Server{
		service:    service,
		configPath: configPath,
		port:       port,
		log:        log.With().Str("component", "api").Logger(),
	}
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始する
func (s *Server) Start() error {
	s.mutex.Lock()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}
	srv := s.server
	s.mutex.Unlock()

	s.log.Info().Str("url", s.URL()).Msg("APIサーバーを開始します")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop はAPIサーバーを停止する
func (s *Server) Stop(ctx context.Context) error {
	s.mutex.RLock()
	srv := s.server
	s.mutex.RUnlock()

	if srv != nil {
		s.log.Info().Msg("APIサーバーを停止します")
		return srv.Shutdown(ctx)
	}
	return nil
}

// URL はステータス確認用のURLを返す
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d/api/motion", s.port)
}

// GetConfig は現在の設定を返す
func (s *Server) GetConfig() *config.Config {
	return s.service.Config()
}

// UpdateConfig は設定を更新する
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.service.UpdateConfig(cfg)
}

// writeJSON はJSONレスポンスを書き込む
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn().Err(err).Msg("JSONエンコードエラー")
		}
	}
}

// writeError はエラーレスポンスを書き込む
func writeError(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"error": message}
	writeJSON(w, status, response)
}
