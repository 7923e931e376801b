package http

import (
	"net/http"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/httputil"
	httpmw "github.com/Kjeonghyun5142/bap-pool/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterDeps struct {
	Handler        *Handler
	Tokens         httpmw.TokenVerifier
	Users          httpmw.UserChecker
	WS             http.HandlerFunc
	Metrics        http.Handler
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmw.RequestContext)
	r.Use(httpmw.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// long-lived, authenticates inside the handshake
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r.Route("/api/chat", func(api chi.Router) {
		api.Use(httpmw.Auth(d.Tokens, d.Users))
		api.Use(middleware.Timeout(timeout))

		api.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", d.Handler.CreateRoom)
			rm.Get("/", d.Handler.ListRooms)
			rm.Get("/{roomID}/messages", d.Handler.ListMessages)
		})
	})

	return r
}
