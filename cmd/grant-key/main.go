package main

import (
	"flag"
	"os"

	"github.com/mandelmonkey/goldenpie/internal/platform/config"
	"github.com/mandelmonkey/goldenpie/internal/tools/grantkey"
)

func main() {
	cfg, err := grantkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := grantkey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate key: %v", err)
	}
}
