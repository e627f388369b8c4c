// Command aisanomaly runs AIS anomaly detection from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata" // data zones must resolve without a system zoneinfo

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/config"
	"github.com/jengzang/ais-anomaly-go/internal/database"
	"github.com/jengzang/ais-anomaly-go/internal/loader"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/internal/params"
	"github.com/jengzang/ais-anomaly-go/internal/repository"
	"github.com/jengzang/ais-anomaly-go/internal/service"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "run":
		return cmdRun(ctx, args[1:], stdout, stderr)
	case "import":
		return cmdImport(ctx, args[1:], stdout, stderr)
	case "classes":
		for _, c := range params.VesselClasses() {
			fmt.Fprintln(stdout, c)
		}
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `aisanomaly - AIS vessel anomaly detection

Usage: aisanomaly <command> [options]

Commands:
  run        Detect anomalies and write a CSV to the output directory
  import     Load an AIS CSV file into the SQLite record store
  classes    List supported vessel classes
  help       Show this help message

Examples:
  aisanomaly run --anomaly-type overspeed --input data.csv \
      --vessel-class cargo --vessel-class tanker --length 50-100 \
      --date-start 2024-01-01 --date-end "2024-01-31 23:59:59"

  aisanomaly run --anomaly-type "speed abnormality" --hawaii-gt --data-dir ./data \
      --vessel-class "tug tow" --date-start 2024-01-15 --date-end 2024-03-10 \
      --hour-start 06:00 --hour-end 18:00

  aisanomaly import --input data.csv --db ./data/ais.db`)
}

// listFlag collects a repeatable string flag
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ", ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func cmdRun(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var classes listFlag
	anomalyType := fs.String("anomaly-type", models.AnomalyOverspeed, `Anomaly type: "overspeed" or "speed abnormality"`)
	input := fs.String("input", "", "AIS CSV file to analyse")
	hawaii := fs.Bool("hawaii-gt", false, "Load monthly Hawaii_YYYY_MM.csv files from --data-dir")
	dataDir := fs.String("data-dir", "", "Directory of monthly files (default from config)")
	dbPath := fs.String("db", "", "SQLite record store, used when neither --input nor --hawaii-gt is set")
	outDir := fs.String("output", "", "Output directory (default from config)")
	fs.Var(&classes, "vessel-class", "Vessel class to include (repeatable)")
	length := fs.String("length", "1-400", "Vessel length range in metres, min-max")
	dateStart := fs.String("date-start", "", `Timeframe start instant (UTC), YYYY-MM-DD or "YYYY-MM-DD HH:MM:SS"`)
	dateEnd := fs.String("date-end", "", `Timeframe end instant (UTC), YYYY-MM-DD or "YYYY-MM-DD HH:MM:SS"; a bare date means midnight`)
	hourStart := fs.String("hour-start", "", "Local time-of-day window start, HH:MM")
	hourEnd := fs.String("hour-end", "", "Local time-of-day window end, HH:MM")
	percentile := fs.Float64("percentile", params.DefaultPercentile, "Overspeed percentile in (0, 1]")
	legacy := fs.Bool("legacy", false, "Overspeed legacy variant: percentile 0.98 without noise suppression")
	timeField := fs.String("time-field", "", `Segmentation time field: "utc" or "local" (default from config)`)

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, log, err := setup()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}
	defer log.Sync()

	p := params.Params{
		AnomalyType:   *anomalyType,
		VesselClasses: classes,
		DateStart:     *dateStart,
		DateEnd:       *dateEnd,
		HourStart:     *hourStart,
		HourEnd:       *hourEnd,
		LegacyVariant: *legacy,
		TimeField:     *timeField,
	}
	if p.TimeField == "" {
		p.TimeField = cfg.Segmentation.TimeField
	}

	if p.LengthMin, p.LengthMax, err = params.ParseLengthRange(*length); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}

	// an explicit flag wins over config; config wins over built-in defaults
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	switch {
	case set["percentile"]:
		p.Percentile = percentile
	case !*legacy:
		p.Percentile = &cfg.Overspeed.Percentile
		p.NoiseSuppression = &cfg.Overspeed.NoiseSuppression
	}

	v, err := params.Validate(p)
	if err != nil {
		printValidation(stderr, err)
		return exitUsage
	}

	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}
	opts := loader.Options{LocalZone: loc}

	var source service.RecordSource
	switch {
	case *hawaii:
		dir := *dataDir
		if dir == "" {
			dir = cfg.Data.Dir
		}
		source = service.MonthlySource{Dir: dir, Options: opts, Log: log}
	case *input != "":
		source = service.CSVSource{Path: *input, Options: opts}
	default:
		path := *dbPath
		if path == "" {
			path = cfg.Database.Path
		}
		db, err := database.Open(ctx, database.Config{Path: path}, log)
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return exitFailure
		}
		defer db.Close()
		source = repository.NewRecordRepository(db)
	}

	svc := service.NewDetectionService(source, service.Options{
		Segmentation:     cfg.SegmentationOptions(),
		Workers:          cfg.Segmentation.Workers,
		SmallDatasetRows: cfg.Output.SmallDatasetRows,
	}, log)

	run, err := svc.Detect(ctx, v)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if apperr.IsConfiguration(err) {
			return exitUsage
		}
		return exitFailure
	}
	if run.Skipped {
		fmt.Fprintln(stdout, "No records to analyse:", run.SkipReason)
		return exitOK
	}

	dir := *outDir
	if dir == "" {
		dir = cfg.Output.Dir
	}
	path, err := service.Export(dir, run)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}

	log.Info("Results written",
		logger.String("run_id", run.ID),
		logger.String("path", path),
		logger.Int("rows", run.Outcome.Rows()),
	)
	fmt.Fprintln(stdout, path)
	return exitOK
}

func cmdImport(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "", "AIS CSV file to import (required)")
	dbPath := fs.String("db", "", "SQLite database path (default from config)")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *input == "" {
		fmt.Fprintln(stderr, "Error: --input flag is required")
		fs.Usage()
		return exitUsage
	}

	cfg, log, err := setup()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}
	defer log.Sync()

	path := *dbPath
	if path == "" {
		path = cfg.Database.Path
	}

	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}

	records, err := loader.LoadFile(*input, loader.Options{LocalZone: loc})
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}

	db, err := database.Open(ctx, database.Config{Path: path}, log)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}
	defer db.Close()

	n, err := repository.NewRecordRepository(db).InsertRecords(ctx, records)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}

	log.Info("Import completed", logger.String("input", *input), logger.String("db", path), logger.Int("records", n))
	fmt.Fprintf(stdout, "Imported %d records into %s\n", n, path)
	return exitOK
}

func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func printValidation(w io.Writer, err error) {
	var verrs *apperr.ValidationErrors
	if !errors.As(err, &verrs) {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	fmt.Fprintln(w, "Invalid parameters:")
	for _, e := range verrs.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
	}
}
