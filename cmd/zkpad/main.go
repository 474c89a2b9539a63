package main

import (
	"fmt"
	"os"
)

// Exit codes: 0 success, 1 usage, 2 validation failure, 3 ledger
// failure, 4 internal error.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var code int
	switch os.Args[1] {
	case "serve":
		code = runServe(os.Args[2:])
	case "verify":
		code = runVerify(os.Args[2:])
	case "interpret":
		code = runInterpret(os.Args[2:])
	case "keygen":
		code = runKeygen(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		code = 1
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: zkpad <command> [flags]

commands:
  serve      run the attestation daemon
  verify     verify a downloaded attestation package offline
  interpret  run the rule-based control interpreter
  keygen     generate an Ed25519 signing key seed`)
}
