// extract runs one extraction from the command line and prints the metadata
// record as JSON or writes an XLSX workbook.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/coordinator"
	"github.com/contractlens/extractor/internal/export"
)

func main() {
	var (
		methodFlag = flag.String("method", "", "extraction method override (text_direct, ocr_all, ocr_images_only, vision_all, hybrid)")
		modeFlag   = flag.String("mode", "", "processing mode override (text_llm, vision_llm, multimodal, dual_llm)")
		xlsxPath   = flag.String("xlsx", "", "also write the record to this XLSX file")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <contract.pdf|contract.docx>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	var opts coordinator.Options
	if *methodFlag != "" {
		if opts.Method, err = constants.ParseExtractionMethod(*methodFlag); err != nil {
			fatal(err)
		}
	}
	if *modeFlag != "" {
		if opts.Mode, err = constants.ParseProcessingMode(*modeFlag); err != nil {
			fatal(err)
		}
	}

	coord, err := coordinator.New(cfg, logger)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := coord.Extract(ctx, path, opts)
	if err != nil {
		fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fatal(err)
	}

	if *xlsxPath != "" {
		f, err := os.Create(*xlsxPath)
		if err != nil {
			fatal(err)
		}
		if err := export.WriteXLSX(f, result.Record); err != nil {
			f.Close()
			fatal(err)
		}
		if err := f.Close(); err != nil {
			fatal(err)
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "extract:", err)
	os.Exit(1)
}
