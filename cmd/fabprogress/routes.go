package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	getadmin "fabprogress/http-server/admin/get"
	saveadmin "fabprogress/http-server/admin/save"
	getcoating "fabprogress/http-server/coating/get"
	savecoating "fabprogress/http-server/coating/save"
	getdossier "fabprogress/http-server/dossier/get"
	getncr "fabprogress/http-server/ncr/get"
	savencr "fabprogress/http-server/ncr/save"
	updatencr "fabprogress/http-server/ncr/update"
	getprogress "fabprogress/http-server/progress/get"
	saveprogress "fabprogress/http-server/progress/save"
	updatecheck "fabprogress/http-server/quality-check/update"
	"fabprogress/http-server/respond"
	"fabprogress/internal/config"
	"fabprogress/internal/featuregate"
	"fabprogress/internal/middleware/auth"
	"fabprogress/internal/middleware/feature"
	"fabprogress/internal/service/dossier"
	"fabprogress/internal/service/progress"
)

func routes(cfg *config.Config, log *slog.Logger, svc *progress.Service, gen *dossier.Generator, gate feature.Checker) *chi.Mux {
	router := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", feature.TenantHeader, respond.ActorHeader},
		AllowCredentials: true,
	})

	router.Use(corsHandler.Handler)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Route("/api", func(r chi.Router) {
		r.Use(feature.Require(log, gate, featuregate.ManufacturingProgress))

		r.Route("/assemblies/{id}", func(r chi.Router) {
			r.Post("/progress", saveprogress.InitializeProgress(log, svc))
			r.Get("/progress", getprogress.GetDetail(log, svc))
			r.Get("/gate", getprogress.GetGate(log, svc))
			r.Post("/advance", saveprogress.Advance(log, svc))
			r.Post("/complete-step", saveprogress.CompleteStep(log, svc))
			r.Get("/history", getprogress.GetHistory(log, svc))
			r.Get("/checks", getprogress.GetChecks(log, svc))
			r.Get("/ncrs", getprogress.GetAssemblyNCRs(log, svc))
			r.Get("/dossier", getdossier.DownloadDossier(log, gen))

			r.Get("/coating", getcoating.GetRecords(log, svc))
			r.Post("/coating/send", savecoating.SendOut(log, svc))
			r.Post("/coating/return", savecoating.RecordReturn(log, svc))
		})

		r.Get("/progress", getprogress.GetAtStep(log, svc))
		r.Get("/coating/ready", getcoating.GetReady(log, svc))
		r.Get("/coating/awaiting", getcoating.GetAwaiting(log, svc))

		r.Post("/quality-checks/{id}", updatecheck.PerformCheck(log, svc))

		r.Post("/ncrs", savencr.OpenNCR(log, svc))
		r.Get("/ncrs/open", getncr.GetOpen(log, svc))
		r.Get("/ncrs/{id}", getncr.GetNCR(log, svc))
		r.Put("/ncrs/{id}", updatencr.UpdateNCR(log, svc))
	})

	adminRouter := chi.NewRouter()
	adminRouter.Use(auth.BasicAuth(cfg.AdminLogin, cfg.AdminPass))

	adminRouter.Post("/assemblies", saveadmin.RegisterAssembly(log, svc))
	adminRouter.Get("/assemblies/{id}", getadmin.GetAssembly(log, svc))

	router.Mount("/api/admin", adminRouter)

	return router
}
