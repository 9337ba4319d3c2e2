// file: main.go
// version: 2.0.0
// guid: 2b4d6f8a-0c1e-4a3b-9d5f-7e9a1c3b5d70

package main

import (
	"fmt"
	"os"

	"github.com/jdfalk/catalog-watcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
