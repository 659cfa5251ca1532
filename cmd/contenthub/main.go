package main

import (
	"os"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
