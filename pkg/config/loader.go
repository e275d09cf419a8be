package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from environment variables according to its `env` tags.
// Every problem is reported at once, so a misconfigured deployment fails
// with the full list instead of one variable per restart.
func Load(cfg any) error {
	err := env.Parse(cfg)
	if err == nil {
		return nil
	}

	var agg env.AggregateError
	if errors.As(err, &agg) && len(agg.Errors) > 1 {
		msgs := make([]string, 0, len(agg.Errors))
		for _, e := range agg.Errors {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("parse config: %d problems: %s", len(msgs), strings.Join(msgs, "; "))
	}
	return fmt.Errorf("parse config: %w", err)
}
