package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/internal/handler/external"
	"github.com/zhouzirui/webverse/backend/internal/handler/story"
	middlewarePkg "github.com/zhouzirui/webverse/backend/internal/middleware"
	"github.com/zhouzirui/webverse/backend/pkg/utils"
)

// Deps 路由所需的依赖
type Deps struct {
	Forwarder story.Forwarder
	// Guard 校验访问令牌，为空时受保护路由一律返回 401
	Guard     func(http.Handler) http.Handler
	AppOrigin string
	BodyLimit int64
	Registry  *prometheus.Registry
	Logger    *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	guard := deps.Guard
	if guard == nil {
		guard = denyAll
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.SecurityHeaders)
	r.Use(middlewarePkg.CORS(deps.AppOrigin))
	if deps.BodyLimit > 0 {
		r.Use(middleware.RequestSize(deps.BodyLimit))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	storyHandler := story.New(deps.Forwarder, log)
	externalHandler := external.New(guard, log)

	r.Route("/api", func(api chi.Router) {
		storyHandler.RegisterRoutes(api)
		externalHandler.RegisterRoutes(api)
	})

	return r
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusUnauthorized, "authentication unavailable")
	})
}
