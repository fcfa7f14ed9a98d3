package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// readFile reads a flat YAML mapping of setting names to values, e.g.
//
//	API_BASE_URL: https://api.example.com
//	RENEW_RETRIES: 2
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[k] = fmt.Sprint(v)
	}
	return values, nil
}
