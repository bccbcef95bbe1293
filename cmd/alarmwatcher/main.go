package main

import (
	"github.com/joho/godotenv"

	"financial-alarms/internal/cli"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cli.Execute()
}
