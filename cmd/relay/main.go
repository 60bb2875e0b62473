// Command relay is a small CLI over the provider library: it lists and
// validates configured providers, streams chat exchanges, and shows quota
// usage. Configuration lives in a YAML file and credentials in a 0600 JSON
// secret file next to it.
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
