package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv loads variables from the files named in ENV_FILE (comma
// separated) or from .env. Variables already set in the process win, and a
// missing file is not an error.
func loadDotEnv() error {
	files := []string{".env"}
	if v := os.Getenv("ENV_FILE"); v != "" {
		files = splitList(v)
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load %s: %w", f, err)
	}

	return nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' })
}
