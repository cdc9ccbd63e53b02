package api

import (
	"net/http"
	"time"

	"loancounselor-backend/internal/handlers"
	"loancounselor-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	CounselorHandler *handlers.CounselorHandlers
	LenderHandler    *handlers.LenderHandlers
	AllowedOrigins   []string
	// RequestTimeout bounds every request; it should exceed the counselor's own timeout.
	RequestTimeout time.Duration
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)        // Inject request ID into context
	r.Use(middleware.RealIP)           // Use X-Forwarded-For or X-Real-IP
	r.Use(RequestLogger)               // One structured log line per request
	r.Use(middleware.Recoverer)        // Recover from panics, return 500
	r.Use(middleware.Timeout(timeout)) // Set a request timeout
	r.Use(MaxBodyBytes(MaxRequestBodyBytes))

	// --- CORS Configuration ---
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if deps.CounselorHandler == nil {
		panic("CounselorHandler dependency is nil in router setup")
	}
	r.Post("/chat", deps.CounselorHandler.HandleChat)
	r.Post("/reset", deps.CounselorHandler.HandleReset)

	if deps.LenderHandler != nil {
		r.Route("/lenders", func(r chi.Router) {
			r.Get("/", deps.LenderHandler.HandleListLenders)
			r.Get("/search", deps.LenderHandler.HandleSearchLenders)
		})
	} else {
		log.Warn().Msg("LenderHandler dependency is nil, skipping /lenders routes.")
	}

	return r
}
