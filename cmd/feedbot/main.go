package main

import (
	"log"

	"github.com/m3rciful/feedbot/core/cmd"
	"github.com/m3rciful/feedbot/internal/app"
)

func main() {
	if err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	}); err != nil {
		log.Fatal(err)
	}
}
