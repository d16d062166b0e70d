package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"apb/internal/apbctl"
)

func main() {
	_ = godotenv.Load()
	if err := apbctl.GetApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
