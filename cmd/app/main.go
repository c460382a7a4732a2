package main

import (
	"log"

	"songgen-studio/internal/bootstrap"
	"songgen-studio/internal/config"
)

func main() {
	app, err := bootstrap.New(config.Load())
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
