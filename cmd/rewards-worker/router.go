package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mwork/mwork-rewards/internal/domain/funds"
	"github.com/mwork/mwork-rewards/internal/domain/scheduler"
	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/middleware"
	"github.com/mwork/mwork-rewards/internal/pkg/errorhandler"
	"github.com/mwork/mwork-rewards/internal/pkg/response"
)

type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

type jobRunner interface {
	RunNow(name string) error
	Status() []scheduler.RunStatus
}

type walletReader interface {
	GetSummary(ctx context.Context, userID uuid.UUID) (*wallet.Summary, error)
}

type fundsReader interface {
	GetSummary(ctx context.Context, userID uuid.UUID) (*funds.Summary, error)
}

type routerDeps struct {
	checks  []readinessCheck
	jobs    jobRunner
	wallets walletReader
	funds   fundsReader
	orders  interface{ Routes() chi.Router }
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range deps.checks {
			if err := c.ping(ctx); err != nil {
				errorhandler.HandleError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", c.name+" unavailable", err)
				return
			}
		}
		response.OK(w, map[string]string{"status": "ready"})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			response.OK(w, deps.jobs.Status())
		})
		r.Post("/{name}/run", func(w http.ResponseWriter, r *http.Request) {
			err := deps.jobs.RunNow(chi.URLParam(r, "name"))
			switch {
			case errors.Is(err, scheduler.ErrUnknownJob):
				response.NotFound(w, "Job not found")
			case err != nil:
				errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "JOB_FAILED", "Job run failed", err)
			default:
				response.OK(w, deps.jobs.Status())
			}
		})
	})

	r.Route("/wallets/{userID}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := parseUserID(w, r)
			if !ok {
				return
			}
			summary, err := deps.wallets.GetSummary(r.Context(), userID)
			if err != nil {
				errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "WALLET_READ_FAILED", "Failed to load wallet", err)
				return
			}
			response.OK(w, summary)
		})
		r.Get("/funds", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := parseUserID(w, r)
			if !ok {
				return
			}
			summary, err := deps.funds.GetSummary(r.Context(), userID)
			if err != nil {
				errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "FUNDS_READ_FAILED", "Failed to load funds", err)
				return
			}
			response.OK(w, summary)
		})
	})

	r.Mount("/orders", deps.orders.Routes())

	return r
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "Invalid user id")
		return uuid.Nil, false
	}
	return userID, true
}
