package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	getsettings "printfarm/http-server/admin/get"
	updatesettings "printfarm/http-server/admin/update"
	getcatalog "printfarm/http-server/catalog/get"
	savecatalog "printfarm/http-server/catalog/save"
	savecycles "printfarm/http-server/cycles/save"
	day_change "printfarm/http-server/day-change"
	generate_excel "printfarm/http-server/generate-report/generate-excel"
	"printfarm/http-server/impact/analyze"
	getmaterials "printfarm/http-server/materials/get"
	savematerials "printfarm/http-server/materials/save"
	getplanning "printfarm/http-server/planning/get"
	saveplanning "printfarm/http-server/planning/save"
	saveprinters "printfarm/http-server/printers/save"
	saveprojects "printfarm/http-server/projects/save"
	"printfarm/http-server/proposals/check"
	"printfarm/internal/config"
	"printfarm/internal/middleware/auth"
	"printfarm/internal/planlog"
	"printfarm/internal/service/catalog"
	"printfarm/internal/service/daychange"
	"printfarm/internal/service/feasibility"
	excelsvc "printfarm/internal/service/generate-excel"
	"printfarm/internal/service/impact"
	"printfarm/internal/service/production"
	"printfarm/internal/service/replan"
	"printfarm/internal/storage/cache"
)

type services struct {
	store       *cache.Store
	catalog     *catalog.Service
	planLog     *planlog.Log
	coordinator *replan.Coordinator
	detector    *daychange.Detector
	impact      *impact.Service
	feasibility *feasibility.Service
	production  *production.Service
	excel       *excelsvc.GenerateExcelService
}

func routes(cfg config.Config, log *slog.Logger, svc services) *chi.Mux {
	router := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	router.Use(corsHandler.Handler)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// catalog
	router.Get("/api/products", getcatalog.GetProducts(log, svc.store))
	router.Put("/api/products", savecatalog.SaveProduct(log, svc.catalog))
	router.Get("/api/projects", getcatalog.GetProjects(log, svc.store))
	router.Post("/api/projects", savecatalog.CreateProject(log, svc.catalog))
	router.Get("/api/printers", getcatalog.GetPrinters(log, svc.store))
	router.Post("/api/printers", savecatalog.CreatePrinter(log, svc.catalog))

	// planning
	router.Post("/api/planning/recalculate", saveplanning.Recalculate(log, svc.coordinator))
	router.Post("/api/planning/auto-replan", saveplanning.AutoReplan(log, svc.coordinator))
	router.Get("/api/planning/status", getplanning.GetStatus(log, svc.coordinator, svc.planLog))
	router.Get("/api/planning/cycles", getplanning.GetCycles(log, svc.store))
	router.Get("/api/planning/coverage", getplanning.GetCoverage(log, svc.store, cfg.Location()))
	router.Post("/api/day-change/check", day_change.CheckDayChange(log, svc.detector))

	// shop floor
	router.Post("/api/cycles/{id}/start", savecycles.StartCycle(log, svc.production))
	router.Post("/api/cycles/{id}/complete", savecycles.CompleteCycle(log, svc.production))
	router.Post("/api/printers/{id}/mount", saveprinters.MountSpool(log, svc.production))
	router.Post("/api/printers/{id}/clear-plates", saveprinters.ClearPlates(log, svc.production))
	router.Put("/api/printers/{id}/status", saveprinters.SetStatus(log, svc.production))
	router.Post("/api/projects/{id}/complete", saveprojects.ForceComplete(log, svc.production))

	// failures and scrap
	router.Post("/api/impact/analyze", analyze.AnalyzeFailure(log, svc.impact))
	router.Post("/api/projects/{id}/scrap-decision", saveprojects.ApplyScrapDecision(log, svc.production))
	router.Get("/api/decisions", saveprojects.RecentDecisions(log, svc.production))
	router.Post("/api/decisions/{decisionID}/undo", saveprojects.UndoScrapDecision(log, svc.production))

	router.Post("/api/proposals/check", check.CheckProposal(log, svc.feasibility))

	// materials
	router.Get("/api/materials/inventory", getmaterials.GetInventory(log, svc.store))
	router.Get("/api/materials/spools-needed", getmaterials.GetSpoolsNeeded(log, svc.store))
	router.Get("/api/materials/load-recommendations", getmaterials.GetLoadRecommendations(log, svc.store))
	router.Post("/api/materials/spools", savematerials.AddSpools(log, svc.production))

	router.Get("/api/report/schedule", generate_excel.ExportSchedule(log, svc.excel, cfg.Location()))

	adminRouter := chi.NewRouter()
	adminRouter.Use(auth.BasicAuth(cfg.AdminLogin, cfg.AdminPass))
	adminRouter.Get("/settings", getsettings.GetSettings(log, svc.store))
	adminRouter.Put("/settings", updatesettings.UpdateSettings(log, svc.store, svc.coordinator))

	router.Mount("/api/admin", adminRouter)

	return router
}
