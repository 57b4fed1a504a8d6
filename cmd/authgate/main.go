// Command authgate serves the session-authenticated pages in front of the
// upstream identity API.
package main

import (
	"log/slog"
	"os"

	"authgate/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		slog.Error("authgate.exit", "err", err)
		os.Exit(1)
	}
}
