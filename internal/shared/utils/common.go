package utils

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads a local .env file outside production. A missing file is fine; the
// process environment still applies.
func LoadEnv(files ...string) error {
	if os.Getenv("ENV") == "PROD" {
		return nil
	}
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func ErrorsIsAny(err error, errs ...error) bool {
	for _, e := range errs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
