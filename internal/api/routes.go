package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/char5742/keyball-inertia/internal/config"
	"github.com/char5742/keyball-inertia/internal/features"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)

	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)
	router.HandleFunc("PUT /api/devices/preferred", s.handleSetPreferredDevice)

	// サービス関連のエンドポイント
	router.HandleFunc("POST /api/service/start", s.handleStartService)
	router.HandleFunc("POST /api/service/stop", s.handleStopService)
	router.HandleFunc("GET /api/service/status", s.handleServiceStatus)

	// モーション関連のエンドポイント
	router.HandleFunc("GET /api/motion", s.handleGetMotion)
	router.HandleFunc("POST /api/motion/activate", s.handleActivate)
	router.HandleFunc("POST /api/motion/release", s.handleRelease)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

// motionRequest は方向指定のリクエストボディ
type motionRequest struct {
	X int8 `json:"x"`
	Y int8 `json:"y"`
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定更新ハンドラ
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config

	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, http.StatusBadRequest, "設定の解析に失敗しました")
		return
	}
	if err := newConfig.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "設定が不正です: "+err.Error())
		return
	}

	s.UpdateConfig(&newConfig)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// 設定保存ハンドラ
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	configPath := s.configPath
	if configPath == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "デフォルト設定ディレクトリの取得に失敗しました")
			return
		}
		configPath = path
	}

	if err := config.SaveConfig(configPath, s.GetConfig()); err != nil {
		writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.open.scan()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "デバイス一覧の取得に失敗しました: "+err.Error())
		return
	}
	if devices == nil {
		devices = []features.Device{}
	}

	writeJSON(w, http.StatusOK, devices)
}

// 優先キーボード設定ハンドラ（次回の起動・再接続から使われる）
func (s *Server) handleSetPreferredDevice(w http.ResponseWriter, r *http.Request) {
	var request struct {
		KeyboardDevice string `json:"keyboard_device"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	cfg := *s.GetConfig()
	cfg.DevicePrefs.PreferredKeyboardDevice = request.KeyboardDevice
	s.UpdateConfig(&cfg)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// サービス起動ハンドラ
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	err := s.service.Start()
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
	case err != nil:
		writeError(w, http.StatusInternalServerError, "サービスの起動に失敗しました: "+err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

// サービス停止ハンドラ
func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	err := s.service.Stop()
	switch {
	case errors.Is(err, ErrNotRunning):
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
	case err != nil:
		writeError(w, http.StatusInternalServerError, "サービスの停止に失敗しました: "+err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}

// サービス状態取得ハンドラ
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "stopped"}
	if s.service.IsRunning() {
		status["status"] = "running"
		if dev, ok := s.service.KeyboardDevice(); ok {
			status["keyboard"] = dev.Name
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// モーション状態取得ハンドラ
func (s *Server) handleGetMotion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Engine().Snapshot())
}

// 押下ハンドラ（キー入力なしで動作を確認するため）
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req motionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	cfg := s.GetConfig()
	in := cfg.InertiaFor(config.BindingConfig{X: req.X, Y: req.Y})
	if err := s.service.Engine().Activate(in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.service.Engine().Snapshot())
}

// 解放ハンドラ
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req motionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	s.service.Engine().Release(req.X, req.Y)
	writeJSON(w, http.StatusOK, s.service.Engine().Snapshot())
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
