// genworld runs the generation pipeline and the asset converters without a
// window.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Faultbox/dreamsurf/internal/logger"
)

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := logger.Init(os.Getenv("DREAMSURF_LOG_LEVEL"), ""); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "ground", "sky", "prop":
		err = cmdGenerate(command, args, os.Stdout)
	case "terrain":
		err = cmdTerrain(args, os.Stdout)
	case "cubemap":
		err = cmdCubemap(args, os.Stdout)
	case "history", "hist":
		err = cmdHistory(args, os.Stdout)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`genworld - DreamSurf asset generation utility

Usage:
  genworld <command> [options]

Commands:
  ground <description>                Generate a tiling ground texture
  sky <description>                   Generate a sky panorama as a KTX2 cubemap
  prop <description>                  Generate a 3D prop (preview and refined GLB)
  terrain [-size N] [-spacing S]      Synthesize the level terrain
  cubemap <panorama> <out.ktx2>       Convert a local equirectangular image
  history [-kind K] [-n N]            List recorded generations

Generation commands read config.yaml and OPENAI_API_KEY / MESHY_API_KEY
(optionally from .env) and write under assets.root.

Examples:
  genworld ground "a mossy forest floor after rain"
  genworld sky -timeout 5m "a violet dusk over the dunes"
  genworld terrain -size 64 -png height.png
  genworld cubemap panorama.png sky.ktx2
  genworld history -kind prop -n 5`)
}
