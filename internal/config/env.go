package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

// DefaultEnvFiles are read by LoadDotEnv when no paths are given.
var DefaultEnvFiles = []string{".env.local", ".env"}

// LoadDotEnv copies variables from dotenv files into the process
// environment. Missing files are skipped and variables already set are left
// alone, so earlier files take precedence.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = DefaultEnvFiles
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "config: load %s", p)
		}
	}
	return nil
}
