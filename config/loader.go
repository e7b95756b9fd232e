package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tricoder.app/models"
	"tricoder.app/routing"
)

// Config represents the complete configuration
type Config struct {
	Personas    []PersonaConfig             `yaml:"personas"`
	Models      map[string]ModelConfig      `yaml:"models"`
	Deployments map[string]DeploymentConfig `yaml:"deployments"`
	Coordinator CoordinatorConfig           `yaml:"coordinator"`
}

// PersonaConfig from YAML. Order in the file is fan-out order.
type PersonaConfig struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Instruction string  `yaml:"instruction"`
	ModelID     string  `yaml:"model_id"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ModelConfig from YAML
type ModelConfig struct {
	Name         string                   `yaml:"name"`
	Family       string                   `yaml:"family"`
	Version      string                   `yaml:"version"`
	Capabilities models.ModelCapabilities `yaml:"capabilities"`
	Deployments  []string                 `yaml:"deployments"`
	Tags         map[string]string        `yaml:"tags"`
}

// DeploymentConfig from YAML
type DeploymentConfig struct {
	ModelID         string            `yaml:"model_id"`
	Provider        string            `yaml:"provider"`
	ProviderModelID string            `yaml:"provider_model_id"`
	Priority        int               `yaml:"priority"`
	Weight          int               `yaml:"weight"`
	Endpoint        EndpointConfig    `yaml:"endpoint"`
	Tags            map[string]string `yaml:"tags"`
}

// EndpointConfig from YAML
type EndpointConfig struct {
	BaseURL       string            `yaml:"base_url"`
	Timeout       string            `yaml:"timeout"`
	MaxRetries    int               `yaml:"max_retries"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	Auth          AuthConfig        `yaml:"auth"`
	CustomHeaders map[string]string `yaml:"custom_headers,omitempty"`
}

// AuthConfig from YAML
type AuthConfig struct {
	Type    string `yaml:"type"`
	KeyName string `yaml:"key_name"`
}

// CoordinatorConfig from YAML
type CoordinatorConfig struct {
	Strategy       string            `yaml:"strategy"`
	JudgeModel     string            `yaml:"judge_model"`
	ConsensusModel string            `yaml:"consensus_model"`
	HealthCheck    HealthCheckConfig `yaml:"health_check"`
}

// HealthCheckConfig from YAML
type HealthCheckConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
	Timeout  string `yaml:"timeout"`
}

// LoadConfig loads configuration from YAML files in configDir, falling
// back to the compiled-in defaults for any file that is absent.
func LoadConfig(configDir string) (*Config, error) {
	config := DefaultConfig()

	personasPath := filepath.Join(configDir, "personas.yaml")
	if fileExists(personasPath) {
		var wrapper struct {
			Personas []PersonaConfig `yaml:"personas"`
		}
		if err := loadYAMLFile(personasPath, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to load personas.yaml: %w", err)
		}
		if len(wrapper.Personas) > 0 {
			config.Personas = wrapper.Personas
		}
	}

	modelsPath := filepath.Join(configDir, "models.yaml")
	if fileExists(modelsPath) {
		var wrapper struct {
			Models map[string]ModelConfig `yaml:"models"`
		}
		if err := loadYAMLFile(modelsPath, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to load models.yaml: %w", err)
		}
		if len(wrapper.Models) > 0 {
			config.Models = wrapper.Models
		}
	}

	deploymentsPath := filepath.Join(configDir, "deployments.yaml")
	if fileExists(deploymentsPath) {
		var wrapper struct {
			Deployments map[string]DeploymentConfig `yaml:"deployments"`
		}
		if err := loadYAMLFile(deploymentsPath, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to load deployments.yaml: %w", err)
		}
		if len(wrapper.Deployments) > 0 {
			config.Deployments = wrapper.Deployments
		}
	}

	coordinatorPath := filepath.Join(configDir, "coordinator.yaml")
	if fileExists(coordinatorPath) {
		var wrapper struct {
			Coordinator CoordinatorConfig `yaml:"coordinator"`
		}
		if err := loadYAMLFile(coordinatorPath, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to load coordinator.yaml: %w", err)
		}
		config.Coordinator = mergeCoordinator(config.Coordinator, wrapper.Coordinator)
	}

	// Expand environment variables
	expandEnvVars(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-references between personas, models, and deployments.
func Validate(config *Config) error {
	if len(config.Personas) == 0 {
		return fmt.Errorf("no personas configured")
	}
	for _, p := range config.Personas {
		if _, exists := config.Models[p.ModelID]; !exists {
			return fmt.Errorf("persona %s references unknown model %s", p.ID, p.ModelID)
		}
	}
	for id, d := range config.Deployments {
		if _, exists := config.Models[d.ModelID]; !exists {
			return fmt.Errorf("deployment %s references unknown model %s", id, d.ModelID)
		}
	}
	if _, exists := config.Models[config.Coordinator.JudgeModel]; !exists {
		return fmt.Errorf("judge model %s not configured", config.Coordinator.JudgeModel)
	}
	if _, exists := config.Models[config.Coordinator.ConsensusModel]; !exists {
		return fmt.Errorf("consensus model %s not configured", config.Coordinator.ConsensusModel)
	}
	return nil
}

// loadYAMLFile loads a YAML file into a structure
func loadYAMLFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func mergeCoordinator(base, override CoordinatorConfig) CoordinatorConfig {
	if override.Strategy != "" {
		base.Strategy = override.Strategy
	}
	if override.JudgeModel != "" {
		base.JudgeModel = override.JudgeModel
	}
	if override.ConsensusModel != "" {
		base.ConsensusModel = override.ConsensusModel
	}
	if override.HealthCheck.Interval != "" {
		base.HealthCheck = override.HealthCheck
	}
	return base
}

// expandEnvVars expands environment variables in configuration
func expandEnvVars(config *Config) {
	for id, deployment := range config.Deployments {
		deployment.Endpoint.BaseURL = expandEnv(deployment.Endpoint.BaseURL)
		config.Deployments[id] = deployment
	}
}

// expandEnv expands environment variables in a string
func expandEnv(s string) string {
	if strings.Contains(s, "${") {
		return os.Expand(s, func(key string) string {
			// Handle default values like ${VAR:-default}
			parts := strings.SplitN(key, ":-", 2)
			value := os.Getenv(parts[0])
			if value == "" && len(parts) > 1 {
				return parts[1]
			}
			return value
		})
	}
	return s
}

// BuildPersonas converts persona configuration into the runtime registry.
func BuildPersonas(config *Config) *models.PersonaRegistry {
	personas := make([]*models.Persona, 0, len(config.Personas))
	for _, pc := range config.Personas {
		temperature := pc.Temperature
		if temperature == 0 {
			temperature = 0.7
		}
		maxTokens := pc.MaxTokens
		if maxTokens == 0 {
			maxTokens = 4000
		}
		personas = append(personas, &models.Persona{
			ID:          pc.ID,
			Name:        pc.Name,
			Instruction: pc.Instruction,
			ModelID:     pc.ModelID,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	}
	return models.NewPersonaRegistry(personas)
}

// BuildRouter creates a router from configuration
func BuildRouter(config *Config) (*routing.Router, *models.ModelRegistry, *models.DeploymentRegistry, error) {
	// Convert strategy string to RoutingStrategy
	var strategy routing.RoutingStrategy
	switch config.Coordinator.Strategy {
	case "round_robin":
		strategy = routing.StrategyRoundRobin
	case "weighted":
		strategy = routing.StrategyWeighted
	case "priority":
		strategy = routing.StrategyPriority
	default:
		strategy = routing.StrategyPriority
	}

	// Create router
	router := routing.NewRouter(strategy)

	// Create registries
	modelRegistry := models.NewModelRegistry()
	deploymentRegistry := models.NewDeploymentRegistry()

	// Register models
	for id, modelConfig := range config.Models {
		model := &models.Model{
			ID:           id,
			Name:         modelConfig.Name,
			Family:       modelConfig.Family,
			Version:      modelConfig.Version,
			Capabilities: modelConfig.Capabilities,
			Tags:         modelConfig.Tags,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		modelRegistry.Register(model)
		router.RegisterModel(model)
	}

	// Register deployments
	for id, deploymentConfig := range config.Deployments {
		// Parse timeout
		timeout, _ := time.ParseDuration(deploymentConfig.Endpoint.Timeout)
		if timeout == 0 {
			timeout = 120 * time.Second
		}

		authType := models.AuthAPIKey
		if deploymentConfig.Endpoint.Auth.Type == "none" {
			authType = models.AuthNone
		}

		deployment := &models.Deployment{
			ID:              id,
			ModelID:         deploymentConfig.ModelID,
			Provider:        models.ProviderType(deploymentConfig.Provider),
			ProviderModelID: deploymentConfig.ProviderModelID,
			Priority:        deploymentConfig.Priority,
			Weight:          deploymentConfig.Weight,
			Endpoint: models.EndpointConfig{
				BaseURL:       deploymentConfig.Endpoint.BaseURL,
				Timeout:       timeout,
				MaxRetries:    deploymentConfig.Endpoint.MaxRetries,
				APIVersion:    deploymentConfig.Endpoint.APIVersion,
				CustomHeaders: deploymentConfig.Endpoint.CustomHeaders,
				Auth: models.AuthConfig{
					Type:    authType,
					KeyName: deploymentConfig.Endpoint.Auth.KeyName,
				},
			},
			Status: models.DeploymentStatus{
				Available: true,
				Healthy:   true,
			},
			Tags:      deploymentConfig.Tags,
			CreatedAt: time.Now(),
		}
		deploymentRegistry.Register(deployment)
		router.RegisterDeployment(deployment)
	}

	return router, modelRegistry, deploymentRegistry, nil
}
