package external

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/internal/middleware"
	"github.com/zhouzirui/webverse/backend/pkg/utils"
)

// ValidatedMessage is returned once the access token passed verification.
const ValidatedMessage = "Your access token was successfully validated!"

// Handler 受保护接口的HTTP处理器
type Handler struct {
	guard func(http.Handler) http.Handler
	log   *zap.Logger
}

// New 创建受保护接口处理器，guard 负责令牌校验
func New(guard func(http.Handler) http.Handler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{guard: guard, log: log.Named("external")}
}

// RegisterRoutes 注册受保护的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.guard).Get("/external", h.handleExternal)
}

func (h *Handler) handleExternal(w http.ResponseWriter, r *http.Request) {
	fields := []zap.Field{zap.String("request_id", chimw.GetReqID(r.Context()))}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		fields = append(fields, zap.String("subject", claims.Subject))
	}
	h.log.Info("external access granted", fields...)

	utils.RespondJSON(w, http.StatusOK, map[string]string{"msg": ValidatedMessage})
}
