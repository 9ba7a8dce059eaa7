// Package provider checks job status at the external generation, captioning
// and publishing services. Services are described in a YAML file so a new
// vendor only needs a config entry.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ownerfi/dealflow/workflow"
	"github.com/sirupsen/logrus"
)

// Registry routes status checks to the service that runs each stage.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Checker
	byStage map[workflow.Stage]Checker
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Checker),
		byStage: make(map[workflow.Stage]Checker),
	}
}

// Register adds c. A later checker for the same stage replaces the earlier one.
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byStage[c.Stage()]; ok && prev.Name() != c.Name() {
		logrus.Warnf("provider %s replaces %s for stage %s", c.Name(), prev.Name(), c.Stage())
		delete(r.byName, prev.Name())
	}
	r.byName[c.Name()] = c
	r.byStage[c.Stage()] = c
}

func (r *Registry) LoadProvidersFromConfig(configPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load providers config: %w", err)
	}
	return r.loadProviders(config)
}

func (r *Registry) LoadProvidersFromConfigBytes(data []byte) error {
	config, err := LoadConfigFromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to parse providers config: %w", err)
	}
	return r.loadProviders(config)
}

func (r *Registry) loadProviders(config *ProvidersConfig) error {
	for _, providerConfig := range config.Providers {
		if !providerConfig.Enabled {
			logrus.Infof("provider %s is disabled, skipping", providerConfig.Name)
			continue
		}

		providerConfig.APIKey = expandEnvVar(providerConfig.APIKey)
		providerConfig.APISecret = expandEnvVar(providerConfig.APISecret)

		if err := validateProviderConfig(providerConfig); err != nil {
			logrus.Warnf("Invalid config for provider %s: %v", providerConfig.Name, err)
			continue
		}

		r.Register(newConfigurableAdapter(providerConfig))
		logrus.Infof("Loaded provider from config: %s (%s)", providerConfig.Name, providerConfig.Stage)
	}
	return nil
}

// CheckStatus implements workflow.StatusChecker.
func (r *Registry) CheckStatus(ctx context.Context, stage workflow.Stage, jobID string) (workflow.JobStatus, error) {
	r.mu.RLock()
	c, ok := r.byStage[stage]
	r.mu.RUnlock()
	if !ok {
		return workflow.JobStatus{}, fmt.Errorf("no provider registered for stage %s", stage)
	}
	return c.CheckStatus(ctx, jobID)
}

// StageFor returns the stage the named service runs. Webhooks are addressed
// by service name.
func (r *Registry) StageFor(service string) (workflow.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[service]
	if !ok {
		return "", false
	}
	return c.Stage(), true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
