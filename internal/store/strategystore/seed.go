package strategystore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"quantsignal/internal/logger"
)

// Seed 是 yaml 种子文件中的一条策略；code 与 document 二选一。
type Seed struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Status      string         `yaml:"status"`
	Code        string         `yaml:"code"`
	Document    map[string]any `yaml:"document"`
}

type seedFile struct {
	Strategies []Seed `yaml:"strategies"`
}

func (s Seed) code() (string, error) {
	if code := strings.TrimSpace(s.Code); code != "" {
		return code, nil
	}
	if len(s.Document) == 0 {
		return "", fmt.Errorf("seed %q has neither code nor document", s.Name)
	}
	raw, err := json.Marshal(s.Document)
	if err != nil {
		return "", fmt.Errorf("seed %q: %w", s.Name, err)
	}
	return string(raw), nil
}

func LoadSeeds(path string) ([]Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seeds %s: %w", path, err)
	}
	return f.Strategies, nil
}

// SeedIfEmpty inserts seeds only when the table has no rows. Returns how many were inserted.
func (s *Store) SeedIfEmpty(ctx context.Context, seeds []Seed) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 || len(seeds) == 0 {
		return 0, nil
	}
	inserted := 0
	for _, seed := range seeds {
		code, err := seed.code()
		if err != nil {
			return inserted, persistErr("seed", "", err)
		}
		status := Status(strings.ToLower(strings.TrimSpace(seed.Status)))
		if status == "" {
			status = StatusActive
		}
		if _, err := s.add(ctx, seed.Name, seed.Description, code, status); err != nil {
			return inserted, persistErr("seed", "", err)
		}
		inserted++
	}
	logger.Infof("seeded %d strategies", inserted)
	return inserted, nil
}

// SeedFromFile loads path and applies SeedIfEmpty. A missing file is not an error.
func (s *Store) SeedFromFile(ctx context.Context, path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, nil
	}
	seeds, err := LoadSeeds(path)
	if os.IsNotExist(err) {
		logger.Warnf("strategy seed file %s not found, skip", path)
		return 0, nil
	}
	if err != nil {
		return 0, persistErr("seed", "", err)
	}
	return s.SeedIfEmpty(ctx, seeds)
}
