// Command keygen writes a new ed25519 key file for a wallet or list
// account and prints its ledger address.
package main

import (
	"fmt"
	"os"

	"archwall.mini/aw/internal/identity"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <output-file>\n", os.Args[0])
		os.Exit(1)
	}

	outfile := os.Args[1]
	id, err := identity.GenerateKeyFile(outfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated key: %s\n", outfile)
	fmt.Printf("Address: %s\n", id.Address())
}
