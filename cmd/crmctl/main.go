// Command crmctl is the operator CLI for issuing and inspecting session
// tokens and hashing passwords.
package main

import (
	"fmt"
	"os"

	"github.com/leadcrm/leadcrm/internal/config"
)

func main() {
	_ = config.Load()
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "crmctl: %v\n", err)
		os.Exit(1)
	}
}
