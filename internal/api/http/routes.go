package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/algodrill/algodrill/internal/attempt"
	"github.com/algodrill/algodrill/internal/auth"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/execution"
	"github.com/algodrill/algodrill/internal/rbac"
	"github.com/algodrill/algodrill/internal/storage"
)

type Deps struct {
	Auth    *authmw.AuthService
	DB      *sql.DB
	Service *attempt.Service
	Runner  execution.Runner  // nil: code runs answer configured=false
	Blobs   storage.BlobStore // nil: no archive routes
	Live    http.Handler      // nil: no websocket sessions

	EnableLocalAuth bool
	EnableGuestAuth bool
	// AllowClaimRole keeps the token's role for subjects missing from users.
	AllowClaimRole bool
	Timeout        time.Duration
}

// Mount registers every API route on r.
func Mount(r chi.Router, d Deps) {
	store := d.Service.Store()
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	if d.EnableLocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.DB))
	}
	if d.EnableGuestAuth {
		r.Post("/auth/guest", auth.GuestLoginHandler(d.Auth, d.DB))
	}

	authed := func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		pr.Use(authmw.AttachRoleFromDB(d.DB, d.AllowClaimRole))
	}

	// websocket sessions outlive the request timeout
	if d.Live != nil {
		r.Group(func(pr chi.Router) {
			authed(pr)
			pr.With(rbac.Require("attempt:submit")).Get("/ws/quizzes/{quizID}", d.Live.ServeHTTP)
		})
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.Timeout(d.Timeout))
		authed(pr)

		pr.With(rbac.Require("question:create")).Post("/questions", CreateQuestionHandler(store))
		pr.With(rbac.Require("question:view")).Get("/questions", ListQuestionsHandler(store))
		pr.With(rbac.Require("question:view")).Get("/questions/{questionID}", GetQuestionHandler(store))

		pr.With(rbac.Require("quiz:create")).Post("/quizzes", CreateQuizHandler(store))
		pr.With(rbac.Require("quiz:create")).Post("/quizzes/import", ImportQuizHandler(store))
		pr.With(rbac.Require("quiz:create")).Get("/quizzes/{quizID}/export", ExportQuizHandler(store))
		pr.With(rbac.Require("quiz:view")).Get("/quizzes", ListQuizzesHandler(store))
		pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}", GetQuizHandler(store))
		pr.With(rbac.Require("attempt:submit")).Post("/quizzes/{quizID}/attempts", SubmitQuizHandler(d.Service))

		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/attempts", ListAttemptsHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/attempts/{attemptID}", GetAttemptHandler(store))
		if d.Blobs != nil {
			pr.With(rbac.RequireAny("attempt:view-own", "code:archive")).Route("/attempts/{attemptID}/code", func(ar chi.Router) {
				MountCodeArchive(ar, store, d.Blobs)
			})
		}

		pr.With(rbac.Require("progress:view-own")).Get("/me/progress", MyProgressHandler(store))
		pr.With(rbac.Require("leaderboard:view")).Get("/leaderboard", LeaderboardHandler(store))
		pr.With(rbac.Require("code:run")).Post("/code/run", RunCodeHandler(store, d.Runner))

		// Users
		pr.With(rbac.Require("user:change_password")).Post("/users/change-password", ChangePasswordHandler(d.DB))
		pr.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.DB))
		pr.With(rbac.Require("users:bulk_upsert")).Post("/users/bulk", BulkUpsertUsersHandler(d.DB))

		// Admin
		pr.Route("/admin", func(ar chi.Router) {
			ar.Use(rbac.Require("admin:manage"))
			ar.Put("/users/{userID}/role", AdminUpdateUserRoleHandler(d.DB))
			ar.Post("/pii/export", HandleAdminPIIExport(d.DB, store))
			ar.Post("/pii/delete", HandleAdminPIIDelete(d.DB))
			ar.Get("/audit", HandleAdminAuditSearch(d.DB))
		})
	})
}
