package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env.local and then .env from dir when present.
// Variables already set in the environment are never overwritten, so the
// OS environment wins over .env.local, which wins over .env. Returns the
// files actually loaded.
func LoadDotEnv(dir string) ([]string, error) {
	var loaded []string
	for _, name := range []string{".env.local", ".env"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	if len(loaded) == 0 {
		return nil, nil
	}
	if err := godotenv.Load(loaded...); err != nil {
		return nil, err
	}
	return loaded, nil
}
