package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ppiankov/claimguard/internal/cli"
	"github.com/ppiankov/claimguard/internal/errs"
)

func main() {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	if err := cli.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes caller mistakes from infrastructure failures
func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInvalidCriteria, errs.KindNotFound:
		return 2
	case errs.KindRepositoryUnavailable, errs.KindReasoningUnavailable, errs.KindQueryConstructionError:
		return 3
	}
	return 1
}
