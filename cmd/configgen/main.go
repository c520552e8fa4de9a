package main

import (
	"flag"
	"log"

	"github.com/danmuck/ebusctl/internal/config"
)

func main() {
	output := flag.String("output", "ebusctl.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "ebusctl.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s (address %02x, %d catalog paths)", *input, cfg.Address, len(cfg.Catalog))
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote config template to %s", *output)
}
