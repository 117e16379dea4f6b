package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Hussein-Mazeh/nostr-identity/cmd/nostrid/commands"
)

func main() {
	handleError(commands.Execute())
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr commands.UserError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}
