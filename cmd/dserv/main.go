package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sheinberglab/dserv/internal/app"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if env := os.Getenv("DSERV_CONFIG_FILE"); env != "" {
			configFile = env
		} else {
			configFile = "/etc/dserv/dserv.yaml"
		}
	}

	a, err := app.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create dserv: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dserv exited with error: %v\n", err)
		os.Exit(1)
	}
}
