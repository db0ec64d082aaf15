package story

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/internal/service/proxy"
	"github.com/zhouzirui/webverse/backend/pkg/utils"
)

// Forwarder 将故事请求转发至生成后端
type Forwarder interface {
	Forward(ctx context.Context, in proxy.Inbound) (*proxy.Result, error)
}

// Handler 故事代理的HTTP处理器
type Handler struct {
	forwarder Forwarder
	log       *zap.Logger
}

// New 创建故事处理器
func New(forwarder Forwarder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		forwarder: forwarder,
		log:       log.Named("story"),
	}
}

// RegisterRoutes 注册故事相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/story", h.handleStory)
}

// handleStory 转发故事请求，原样回传后端的状态码与响应体
func (h *Handler) handleStory(w http.ResponseWriter, r *http.Request) {
	reqLog := h.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in, err := proxy.ParseInbound(r.Header.Get("Content-Type"), body)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.forwarder.Forward(r.Context(), in)
	if err != nil {
		reqLog.Error("story proxy request failed", zap.String("kind", in.Kind()), zap.Error(err))
		utils.RespondErrorDetails(w, http.StatusInternalServerError, "Story proxy request failed", err.Error())
		return
	}
	defer result.Body.Close()

	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(result.StatusCode)
	n, err := io.Copy(w, result.Body)
	if err != nil {
		// 响应头已发送，只能记录
		reqLog.Warn("relay interrupted", zap.Int64("bytes", n), zap.Error(err))
		return
	}

	reqLog.Info("story relayed",
		zap.String("kind", in.Kind()),
		zap.Int("status", result.StatusCode),
		zap.Int("attempts", result.Attempts),
		zap.Bool("fallback", result.Fallback),
		zap.Int64("bytes", n),
	)
}
