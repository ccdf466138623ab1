package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/xrayaid/xrayaid/internal/api"
	"github.com/xrayaid/xrayaid/internal/care"
	"github.com/xrayaid/xrayaid/internal/config"
	"github.com/xrayaid/xrayaid/internal/database"
	"github.com/xrayaid/xrayaid/internal/diagnosis"
	"github.com/xrayaid/xrayaid/internal/predict"
	"github.com/xrayaid/xrayaid/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("loading configuration")
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	store, err := storage.NewLocalStorage(cfg.UploadDir, "/files")
	if err != nil {
		log.Fatal().Err(err).Msg("initializing storage")
	}

	db, err := database.NewDB(database.Config{
		Type:       cfg.DBType,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		Name:       cfg.DBName,
		SQLitePath: cfg.DBPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("initializing database")
	}
	defer db.Close()

	if cfg.DBType == "postgres" {
		migrator := database.NewMigrator(db.Conn(), cfg.DBType, log)
		if err := migrator.Run("./migrations"); err != nil {
			log.Fatal().Err(err).Msg("running migrations")
		}
	}

	repo := database.NewDiagnosisRepository(db)

	var predictor predict.Client
	var healthCheck predict.HealthChecker
	if cfg.UseMockPredictor {
		log.Warn().Msg("using mock predictor, results are synthetic")
		predictor = predict.NewMockClient(time.Now().UnixNano())
	} else {
		client := predict.NewHTTPClient(cfg.InferenceURL, cfg.InferenceTimeout())
		predictor = client
		healthCheck = client
	}

	workflow := diagnosis.NewWorkflow(store, predictor, repo, diagnosis.Config{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		PositiveThreshold: cfg.PositiveThreshold,
		HighRiskThreshold: cfg.HighRiskThreshold,
	}, log)

	providers := buildProviders(cfg, log)
	chain := care.NewChain(providers, cfg.CareCacheTTL(), log)
	recommender := care.NewRecommender(chain, care.RecommenderConfig{
		RadiusKm: cfg.CareRadiusKm,
		TopN:     cfg.CareTopN,
	}, log)

	app := &api.App{
		Storage:        store,
		DB:             db,
		DiagnosisRepo:  repo,
		Workflow:       workflow,
		Recommender:    recommender,
		InferenceCheck: healthCheck,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	}

	router := api.NewRouter(app)

	log.Info().
		Str("port", cfg.Port).
		Str("db_type", cfg.DBType).
		Str("upload_dir", cfg.UploadDir).
		Strs("care_providers", cfg.ProviderList()).
		Bool("mock_predictor", cfg.UseMockPredictor).
		Msg("server starting")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func buildProviders(cfg *config.Config, log zerolog.Logger) []care.Provider {
	var providers []care.Provider
	for _, name := range cfg.ProviderList() {
		switch name {
		case "google":
			if cfg.GoogleMapsAPIKey == "" {
				log.Warn().Msg("GOOGLE_MAPS_API_KEY not set, skipping google places provider")
				continue
			}
			providers = append(providers, care.NewGooglePlacesProvider(cfg.GoogleMapsAPIKey))
		case "overpass":
			providers = append(providers, care.NewOverpassProvider(cfg.OverpassEndpoint))
		case "static":
			providers = append(providers, newStaticProvider(cfg, log))
		}
	}
	return providers
}

func newStaticProvider(cfg *config.Config, log zerolog.Logger) *care.StaticProvider {
	if cfg.StaticFacilitiesFile == "" {
		return care.NewStaticProvider(nil)
	}

	f, err := os.Open(cfg.StaticFacilitiesFile)
	if err != nil {
		log.Warn().Err(err).Str("file", cfg.StaticFacilitiesFile).Msg("cannot open static facilities file")
		return care.NewStaticProvider(nil)
	}
	defer f.Close()

	facilities, err := care.LoadStaticFacilities(f)
	if err != nil {
		log.Warn().Err(err).Msg("cannot parse static facilities file")
		return care.NewStaticProvider(nil)
	}

	log.Info().Int("count", len(facilities)).Msg("loaded static care facilities")
	return care.NewStaticProvider(facilities)
}
