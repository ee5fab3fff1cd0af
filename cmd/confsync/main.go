package main

import (
	"log"

	"github.com/satyamsundaram01/confsync/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ confsync failed to start: %v", err)
	}
}
