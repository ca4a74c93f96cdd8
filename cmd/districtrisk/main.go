// Command districtrisk turns a monthly Aadhaar upload CSV into the district
// risk table loaded by the server through DISTRICT_RISK_FILE.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"securekyc/internal/kyc/districts"
	"securekyc/internal/platform/logger"
)

func main() {
	in := flag.String("in", "", "CSV with district,month,total_upload columns (default stdin)")
	out := flag.String("out", "", "YAML output path (default stdout)")
	flag.Parse()

	log := logger.New(slog.LevelInfo)
	if err := run(*in, *out, log); err != nil {
		log.Error("district risk analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(inPath, outPath string, log *slog.Logger) (err error) {
	var r io.Reader = os.Stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	levels, err := districts.Classify(r)
	if err != nil {
		return fmt.Errorf("classify %s: %w", inPath, err)
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	if err := districts.Write(w, levels); err != nil {
		return err
	}

	high := 0
	for _, level := range levels {
		if level == districts.LevelHigh {
			high++
		}
	}
	log.Info("district risk table written", "districts", len(levels), "high", high, "out", outPath)
	return nil
}
