package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	cryptoinfra "zkpad/internal/infra/crypto"
)

func runKeygen(args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var outPath string
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		fmt.Fprintf(os.Stderr, "read random: %v\n", err)
		return 4
	}
	signer, err := cryptoinfra.NewSignerFromSeed(seed[:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "derive key: %v\n", err)
		return 4
	}

	encoded, err := cryptoinfra.CanonicalizeAny(map[string]any{
		"seed_hex":   hex.EncodeToString(seed[:]),
		"public_key": signer.PublicKeyHex(),
	})
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
