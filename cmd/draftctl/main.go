// Command draftctl runs a draftsync context against NATS and inspects its local
// emergency log.
package main

import (
	"os"

	"github.com/arloliu/draftsync/cmd/draftctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
