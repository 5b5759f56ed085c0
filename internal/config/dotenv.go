package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv reads a .env file and sets environment variables that are
// not already defined. Missing file is silently ignored. Existing env
// vars are never overridden.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
