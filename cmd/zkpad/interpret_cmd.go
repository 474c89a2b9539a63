package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	cryptoinfra "zkpad/internal/infra/crypto"
	"zkpad/internal/usecase"
)

func runInterpret(args []string) int {
	fs := flag.NewFlagSet("interpret", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var statement string
	var framework string
	var controlID string
	var outPath string
	fs.StringVar(&statement, "statement", "", "control statement text")
	fs.StringVar(&framework, "framework", "", "compliance framework")
	fs.StringVar(&controlID, "control-id", "", "control identifier")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if statement == "" || framework == "" {
		fmt.Fprintln(os.Stderr, "interpret requires --statement and --framework")
		return 1
	}

	uc := &usecase.InterpretControl{}
	interp, err := uc.Execute(context.Background(), statement, framework, controlID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interpret: %v\n", err)
		return 2
	}
	encoded, err := cryptoinfra.CanonicalizeAny(interp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 4
	}
	if err := writeOutput(outPath, encoded); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 4
	}
	return 0
}
