// autorecord CLI - inspect and maintain recorded request/response stores.
package main

import (
	"fmt"
	"os"

	"github.com/ha404/autorecord/pkg/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "autorecord: %v\n", err)
		os.Exit(1)
	}
}
