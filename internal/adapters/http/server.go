package httpadapter

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"verity/internal/services/assignment"
	"verity/internal/services/dashboard"
	"verity/internal/services/review"
	"verity/internal/services/websites"
	"verity/internal/services/workflow"
)

type Server struct {
	websites   *websites.Service
	assignment *assignment.Service
	review     *review.Service
	workflow   *workflow.Service
	dashboard  *dashboard.Service
	jwtSecret  string
	log        *zap.Logger
}

func New(websites *websites.Service, assignment *assignment.Service, review *review.Service, wf *workflow.Service, dashboard *dashboard.Service, jwtSecret string, log *zap.Logger) *Server {
	return &Server{
		websites:   websites,
		assignment: assignment,
		review:     review,
		workflow:   wf,
		dashboard:  dashboard,
		jwtSecret:  jwtSecret,
		log:        log,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(Authenticator(s.jwtSecret))

		r.Route("/websites", func(r chi.Router) {
			r.Post("/", s.handleCreateWebsite)
			r.Get("/", s.handleListWebsites)
			r.Route("/{websiteID}", func(r chi.Router) {
				r.Get("/", s.handleGetWebsite)
				r.Put("/experts", s.handleAssignExperts)
				r.Get("/experts", s.handleCheckAssignment)
				r.Post("/ingestion/retry", s.handleRetryIngestion)
				r.Post("/review/complete", s.handleCompleteReview)
				r.Post("/signoff", s.handleSignOff)
				r.Get("/patterns", s.handleListPatterns)
				r.Post("/patterns", s.handleAddPattern)
			})
		})
		r.Route("/patterns/{patternID}", func(r chi.Router) {
			r.Get("/", s.handleGetPattern)
			r.Put("/verification", s.handleSubmitVerification)
			r.Post("/comments", s.handleAddComment)
			r.Post("/comments/{commentID}/replies", s.handleAddReply)
		})
		r.Get("/dashboard/kpi", s.handleKPI)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
