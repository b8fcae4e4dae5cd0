// Command scspa signs a terminal user in against a tenant identity provider and
// reads the resulting session: access token, user and permissions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
