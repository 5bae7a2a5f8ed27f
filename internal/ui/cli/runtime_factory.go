package cli

import (
	"fmt"

	coreapp "aquanet/internal/core/app"
	"aquanet/internal/core/config"
	"aquanet/internal/core/ports"
)

type simulationFactory interface {
	New(cfg *config.Config, runs ports.RunHistory, outputDir string) (*coreapp.App, error)
}

type coreSimulationFactory struct{}

func (coreSimulationFactory) New(cfg *config.Config, runs ports.RunHistory, outputDir string) (*coreapp.App, error) {
	return coreapp.New(cfg, runs, outputDir)
}

func initializeSimulation(cfg *config.Config, runs ports.RunHistory, outputDir string, factory simulationFactory) (*coreapp.App, ports.SimulationService, error) {
	if factory == nil {
		return nil, nil, fmt.Errorf("simulation factory is required")
	}
	app, err := factory.New(cfg, runs, outputDir)
	if err != nil {
		return nil, nil, err
	}
	return app, app.SimulationService(), nil
}
