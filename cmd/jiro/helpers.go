package main

import (
	"errors"
	"fmt"

	"github.com/Gidwell/jiro/internal/bootstrap"
	"github.com/Gidwell/jiro/internal/config"
)

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStores() (*bootstrap.Stores, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	stores, err := bootstrap.OpenStores(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	return stores, nil
}

func buildComponents() (*bootstrap.Components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	components, err := bootstrap.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("build components: %w", err)
	}
	return components, nil
}

func validateLearnerID(learnerID int64) error {
	if learnerID <= 0 {
		return errors.New("--learner must be a positive learner ID")
	}
	return nil
}
