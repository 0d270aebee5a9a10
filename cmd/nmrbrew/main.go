// Command nmrbrew runs a folder of Bruker 1D experiments through the
// processing pipeline without a user interface: import, every active stage
// in order, then export.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/fsutil"
	"github.com/banshee-data/nmrbrew/internal/importer"
	"github.com/banshee-data/nmrbrew/internal/pipeline"
	"github.com/banshee-data/nmrbrew/internal/process"
	"github.com/banshee-data/nmrbrew/internal/runlog"
	"github.com/banshee-data/nmrbrew/internal/version"
)

var (
	dataDir     = flag.String("data", "", "Folder to search for Bruker experiments")
	configFile  = flag.String("config", "", "Configuration document to load before running (.nmrbrew or .json)")
	saveConfig  = flag.String("save-config", "", "Write the final configuration document to this path")
	outFile     = flag.String("out", "", "Export the processed spectra to this file")
	outFormat   = flag.String("format", "csv", "Export format: csv, tsv or txt")
	dbFile      = flag.String("db", "", "Record stage runs in this SQLite database")
	workers     = flag.Int("workers", 0, "Concurrent stage runs (default: number of CPUs)")
	outlierM    = flag.Float64("outlier-m", 2, "Standard deviations beyond which a point counts as an outlier")
	verbose     = flag.Bool("v", false, "Log diagnostics")
	trace       = flag.Bool("trace", false, "Log per-sample progress")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// runOptions is everything main resolves from flags.
type runOptions struct {
	DataDir    string
	ConfigFile string
	SaveConfig string
	OutFile    string
	OutFormat  string
	DBFile     string
	Workers    int
	OutlierM   float64
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	var diag, tr io.Writer
	if *verbose {
		diag = os.Stderr
	}
	if *trace {
		tr = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, tr)
	process.SetLogWriters(os.Stderr, diag, tr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		DataDir:    *dataDir,
		ConfigFile: *configFile,
		SaveConfig: *saveConfig,
		OutFile:    *outFile,
		OutFormat:  *outFormat,
		DBFile:     *dbFile,
		Workers:    *workers,
		OutlierM:   *outlierM,
	}
	if err := run(ctx, fsutil.OSFileSystem{}, opts, os.Stdout); err != nil {
		log.Fatalf("nmrbrew: %v", err)
	}
}

func run(ctx context.Context, fsys fsutil.FileSystem, o runOptions, out io.Writer) error {
	cfg := config.NewContext()
	cfg.Workers = o.Workers
	cfg.OutlierThreshold = o.OutlierM

	p, err := pipeline.New(cfg, process.Default(fsys)...)
	if err != nil {
		return err
	}

	if o.DBFile != "" {
		rl, err := runlog.Open(ctx, o.DBFile, cfg.GetClock())
		if err != nil {
			return fmt.Errorf("failed to open run log: %w", err)
		}
		defer rl.Close()
		p.AddObserver(rl)
		defer printSummary(ctx, rl, out)
	}

	if o.ConfigFile != "" {
		doc, err := config.LoadDocument(fsys, o.ConfigFile)
		if err != nil {
			return err
		}
		report, err := p.ImportConfiguration(ctx, doc)
		if err != nil {
			return err
		}
		if err := report.Err(); err != nil {
			log.Printf("configuration partly applied: %v", err)
		}
	}

	if o.DataDir != "" {
		if err := setOptions(ctx, p, importer.Key, map[string]any{"filename": o.DataDir}); err != nil {
			return err
		}
	}
	if o.OutFile != "" {
		if err := setOptions(ctx, p, process.KeyExportSpectra, map[string]any{"filename": o.OutFile, "format": o.OutFormat}); err != nil {
			return err
		}
	}

	runErr := p.RunAll(ctx)
	p.Wait()
	if runErr != nil && ctx.Err() == nil && onlyExportUnset(p) {
		fmt.Fprintln(out, "no export filename set; spectra not written")
		runErr = nil
	}
	printStatuses(p, out)

	if o.SaveConfig != "" {
		doc, err := p.ExportConfiguration()
		if err != nil {
			return err
		}
		if err := config.SaveDocument(fsys, o.SaveConfig, doc); err != nil {
			return err
		}
		fmt.Fprintf(out, "configuration saved to %s\n", o.SaveConfig)
	}
	return runErr
}

// onlyExportUnset reports whether the sole failure is an export run with no
// target file.
func onlyExportUnset(p *pipeline.Pipeline) bool {
	for _, s := range p.Stages() {
		err := s.LastError()
		if err == nil {
			continue
		}
		if s.Key() != process.KeyExportSpectra || !errors.Is(err, process.ErrNoFilename) {
			return false
		}
	}
	return true
}

func setOptions(ctx context.Context, p *pipeline.Pipeline, key string, values map[string]any) error {
	s, err := p.Stage(key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if err := s.SetMany(ctx, raw); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func printStatuses(p *pipeline.Pipeline, out io.Writer) {
	for _, s := range p.Stages() {
		line := fmt.Sprintf("%-22s %s", s.Key(), s.Status())
		if res := s.Output(); res != nil && res.Dataset != nil {
			line += fmt.Sprintf("  %d x %d", res.Dataset.Samples(), res.Dataset.Points())
		}
		if err := s.LastError(); err != nil {
			line += "  " + err.Error()
		}
		fmt.Fprintln(out, line)
	}
}

func printSummary(ctx context.Context, rl *runlog.Log, out io.Writer) {
	sums, err := rl.Summarise(ctx)
	if err != nil {
		log.Printf("run log summary: %v", err)
		return
	}
	for _, s := range sums {
		fmt.Fprintf(out, "%-22s runs=%d failures=%d mean=%s\n", s.Stage, s.Runs, s.Failures, s.Mean)
	}
}
