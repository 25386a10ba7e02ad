// Command migrator moves SAP Business One documents from HANA into SQL Server,
// replacing one (document type, date, warehouse) scope per run.
package main

import (
	"fmt"
	"os"

	"migrator/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
