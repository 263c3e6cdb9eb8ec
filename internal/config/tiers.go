package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServiceLimit is the rate budget for one upstream API.
type ServiceLimit struct {
	MinIntervalMS int `yaml:"minIntervalMS" validate:"gt=0"`
	MonthlyQuota  int `yaml:"monthlyQuota" validate:"gte=0"` // 0 = unlimited
}

// Interval returns the minimum spacing as a duration.
func (s ServiceLimit) Interval() time.Duration {
	return time.Duration(s.MinIntervalMS) * time.Millisecond
}

// Tier bundles the limits of both upstreams for one subscription level.
type Tier struct {
	Ednia    ServiceLimit `yaml:"ednia" validate:"required"`
	ResRobot ServiceLimit `yaml:"resrobot" validate:"required"`
}

// DefaultTiers mirrors the documented ResRobot plans. Bronze is the
// free key everyone starts with (45 req/min, 30k calls/month); the
// catalog has no published limit so we just keep 100ms between calls.
func DefaultTiers() map[string]Tier {
	return map[string]Tier{
		"bronze": {
			Ednia:    ServiceLimit{MinIntervalMS: 100},
			ResRobot: ServiceLimit{MinIntervalMS: 1500, MonthlyQuota: 30000},
		},
		"silver": {
			Ednia:    ServiceLimit{MinIntervalMS: 100},
			ResRobot: ServiceLimit{MinIntervalMS: 250, MonthlyQuota: 150000},
		},
	}
}

// LoadTiers reads tier definitions from a YAML file, falling back to
// DefaultTiers when path is empty or the file does not exist.
func LoadTiers(path string) (map[string]Tier, error) {
	if path == "" {
		return DefaultTiers(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTiers(), nil
		}
		return nil, err
	}

	var tiers map[string]Tier
	if err := yaml.Unmarshal(data, &tiers); err != nil {
		return nil, fmt.Errorf("tiers: parse %s: %w", path, err)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tiers: %s defines no tiers", path)
	}

	v := validator.New()
	for name, t := range tiers {
		if err := v.Struct(t); err != nil {
			return nil, fmt.Errorf("tiers: invalid tier %q: %w", name, err)
		}
	}
	return tiers, nil
}
