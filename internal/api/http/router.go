package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/exam"
	"github.com/mind-engage/examportal/internal/logger"
	"github.com/mind-engage/examportal/internal/rbac"
	"github.com/mind-engage/examportal/internal/user"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Auth           *auth.AuthService
	Users          *user.Service
	Roles          auth.RoleLookup
	Exams          *exam.Service
	Events         EventReader
	DB             Pinger
	Log            zerolog.Logger
	Origins        []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.RequestLogger(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				respondMessage(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", RegisterHandler(d.Users))
		api.Post("/auth/login", LoginHandler(d.Users, d.Auth))

		// Protected API (JWT → role re-read from the users table → RBAC)
		api.Group(func(pr chi.Router) {
			pr.Use(auth.JWTMiddleware(d.Auth), auth.AttachRoleFromStore(d.Roles))

			pr.With(rbac.Require("user:self")).Get("/auth/me", MeHandler(d.Users))
			pr.With(rbac.Require("user:self")).Get("/users/me", MeHandler(d.Users))
			pr.With(rbac.Require("user:self")).Patch("/users/me/change-password", ChangePasswordHandler(d.Users))

			pr.Route("/exams", func(er chi.Router) {
				er.With(rbac.Require("exam:create")).Post("/", CreateExamHandler(d.Exams))
				er.With(rbac.Require("exam:view")).Get("/", ListExamsHandler(d.Exams))
				er.With(rbac.Require("exam:view")).Get("/{examID}", GetExamHandler(d.Exams))
				er.With(rbac.Require("exam:publish")).Patch("/{examID}/publish", PublishExamHandler(d.Exams))
				er.With(rbac.Require("exam:publish")).Patch("/{examID}/unpublish", UnpublishExamHandler(d.Exams))
				er.With(rbac.Require("attempt:view")).Get("/{examID}/attempts", AttemptsHandler(d.Exams))
				er.With(rbac.Require("exam:delete")).Delete("/{examID}", DeleteExamHandler(d.Exams))
			})

			pr.Route("/submissions", func(sr chi.Router) {
				sr.With(rbac.Require("submission:create")).Post("/", SubmitHandler(d.Exams))
				sr.With(rbac.Require("result:view-own")).Get("/me/results", MyResultsHandler(d.Exams))
				// ownership is checked by the service
				sr.With(rbac.RequireAny("submission:view-own", "submission:view-all")).
					Get("/{submissionID}", GetSubmissionHandler(d.Exams))
				sr.With(rbac.Require("submission:view-all")).
					Get("/student/{studentID}", ListSubmissionsHandler(d.Exams, "studentID"))
				sr.With(rbac.Require("submission:view-all")).
					Get("/exam/{examID}", ListSubmissionsHandler(d.Exams, "examID"))
			})

			mountAdminRoutes(pr, d)
		})
	})
	return r
}

// mountAdminRoutes wires the administration APIs under /api/admin.
func mountAdminRoutes(api chi.Router, d Deps) {
	api.Route("/admin", func(r chi.Router) {
		r.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.Users))
		r.With(rbac.Require("dashboard:view")).Get("/dashboard", DashboardHandler(d.Exams, d.Users))
		r.With(rbac.Require("audit:view")).Get("/events", AuditEventsHandler(d.Events))
		r.With(rbac.Require("audit:view")).Get("/archives/*", ExamArchiveHandler(d.Exams))

		// ---- Results ----
		r.With(rbac.Require("result:view-all")).Get("/results", ListResultsHandler(d.Exams))
		r.With(rbac.Require("result:publish")).Patch("/results/{resultID}/publish", PublishResultHandler(d.Exams))
		r.With(rbac.Require("result:publish")).Patch("/results/{resultID}/unpublish", UnpublishResultHandler(d.Exams))
		r.With(rbac.Require("result:delete")).Delete("/results/{resultID}", DeleteResultHandler(d.Exams))

		// ---- Bulk, per exam ----
		r.With(rbac.Require("result:publish")).Post("/exams/{examID}/results/publish", BulkResultsHandler(d.Exams.PublishExamResults))
		r.With(rbac.Require("result:publish")).Post("/exams/{examID}/results/unpublish", BulkResultsHandler(d.Exams.UnpublishExamResults))
		r.With(rbac.Require("result:delete")).Delete("/exams/{examID}/results", BulkResultsHandler(d.Exams.DeleteExamResults))
	})
}
