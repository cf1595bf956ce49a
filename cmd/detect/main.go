package main

import (
	"VisionDetect/pkg/log"
	"VisionDetect/pkg/utils"
	websocketPkg "VisionDetect/pkg/websocket"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// detect streams local images to a running server and prints one line per rendered box.
func main() {
	outDir := flag.String("out", "", "directory for annotated images")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.NewLogger().Fatalf("Error loading .env file: %v", err)
	}

	logger := log.NewLogger()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: detect [-out dir] image...")
		os.Exit(2)
	}

	imageUtils := utils.New()
	stream := websocketPkg.New()
	defer stream.Close()

	failed := false
	for _, name := range flag.Args() {
		data, err := os.ReadFile(name)
		if err != nil {
			logger.Errorf("Error reading %s: %v", name, err)
			failed = true
			continue
		}

		result, err := stream.Detect(data)
		if err != nil {
			if errors.Is(err, websocketPkg.ErrDetectionFailed) {
				fmt.Fprintf(os.Stderr, "%s: %s\n", name, strings.TrimPrefix(err.Error(), websocketPkg.ErrDetectionFailed.Error()+": "))
			} else {
				logger.Errorf("Error detecting %s: %v", name, err)
			}
			failed = true
			continue
		}

		fmt.Printf("%s\n", name)
		for _, line := range result.Lines {
			fmt.Printf("  %s\n", line)
		}

		if *outDir == "" {
			continue
		}

		annotated, err := imageUtils.DecodeBase64Image(result.AnnotatedImage)
		if err != nil {
			logger.Errorf("Error decoding annotated image for %s: %v", name, err)
			failed = true
			continue
		}

		target := filepath.Join(*outDir, "annotated-"+filepath.Base(name))
		if err := os.WriteFile(target, annotated, 0o644); err != nil {
			logger.Errorf("Error writing %s: %v", target, err)
			failed = true
		}
	}

	if failed {
		stream.Close()
		os.Exit(1)
	}
}
