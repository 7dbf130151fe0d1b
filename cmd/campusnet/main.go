package main

import (
	"context"
	"fmt"
	"os"

	"github.com/campusnet/backend/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "campusnet:", err)
		os.Exit(1)
	}
}
