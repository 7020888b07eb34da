package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"rnadiff/internal/errors"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", errors.GetCode(err), err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates a failed search or a missing query sequence, whose
// results are still on disk, from failures that produced nothing
func exitCode(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeSearchUnavailable:
		return 3
	case errors.CodeQueryUnavailable:
		return 4
	case errors.CodeInputValidation, errors.CodeEmptyInput, errors.CodeConfigInvalid:
		return 2
	}
	return 1
}
