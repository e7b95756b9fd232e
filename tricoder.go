package main

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"tricoder.app/config"
	"tricoder.app/models"
	"tricoder.app/providers"
	"tricoder.app/routing"
	"tricoder.app/storage"
)

// Wired at startup and read-only afterwards
var (
	appConfig       *config.Config
	recordStore     *storage.Store
	llmRouter       *routing.Router
	personaRegistry *models.PersonaRegistry
	coordinator     *Coordinator
)

func main() {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %s: %v", dataDir, err)
	}

	if err := InitAuditDB(dataDir); err != nil {
		log.Printf("WARNING: audit logging unavailable: %v", err)
	}

	store, err := storage.Open(
		filepath.Join(dataDir, "tricoder.db"),
		filepath.Join(dataDir, "credentials.key"),
	)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	recordStore = store

	// Env-provisioned keys seed the credential store; user-set keys win
	seedCredentials(store)

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	appConfig = cfg

	router, _, deployments, err := config.BuildRouter(cfg)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}
	router.RegisterProvider(models.ProviderDeepSeek, providers.NewDeepSeekProvider())
	router.RegisterProvider(models.ProviderOpenAI, providers.NewDeepSeekProvider())
	router.RegisterProvider(models.ProviderGemini, providers.NewGeminiProvider())
	router.SetKeyResolver(store.GetCredential)
	llmRouter = router

	personaRegistry = config.BuildPersonas(cfg)
	log.Printf("Personas: %v (judge=%s, consensus=%s)",
		personaRegistry.Names(), cfg.Coordinator.JudgeModel, cfg.Coordinator.ConsensusModel)
	log.Printf("Deployments: %d registered", len(deployments.List()))

	coordinator = NewCoordinator(store, personaRegistry,
		cfg.Coordinator.JudgeModel, cfg.Coordinator.ConsensusModel, callModel)

	if cfg.Coordinator.HealthCheck.Enabled {
		interval, _ := time.ParseDuration(cfg.Coordinator.HealthCheck.Interval)
		if interval == 0 {
			interval = time.Minute
		}
		timeout, _ := time.ParseDuration(cfg.Coordinator.HealthCheck.Timeout)
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		checker := routing.NewHealthChecker(router, interval, timeout)
		checker.Start()
	}

	// TODO: Implement graceful shutdown with signal handling
	StartHTTPServer(HTTP_PORT)
}

// seedCredentials provisions API keys from the environment without
// overwriting keys the user has already stored.
func seedCredentials(store *storage.Store) {
	for name, envKey := range map[string]string{
		"deepseek_api_key": "DEEPSEEK_API_KEY",
		"gemini_api_key":   "GEMINI_API_KEY",
	} {
		if value := os.Getenv(envKey); value != "" {
			if err := store.SeedCredential(name, value); err != nil {
				log.Printf("WARNING: failed to seed credential %s: %v", name, err)
			}
		}
	}
}
