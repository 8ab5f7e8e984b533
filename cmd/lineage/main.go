package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		os.Exit(ExitSuccess)
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.msg != "" {
			fmt.Fprintln(os.Stderr, exitErr.msg)
		}
		os.Exit(exitErr.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(ExitInternalError)
}
