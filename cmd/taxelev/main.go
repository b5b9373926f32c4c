package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"taxelev/internal"
	"taxelev/internal/config"
	"taxelev/internal/connectors"
	"taxelev/internal/corrections"
	"taxelev/internal/listener"
	"taxelev/internal/logging"
	"taxelev/internal/pattern"
	"taxelev/internal/pipeline"
	"taxelev/internal/storage"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(newRootCmd(cfg).ExecuteContext(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func newRootCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxelev <file>",
		Short: "Extract taxon names and elevation ranges from survey documents",
		Long: `taxelev reads a floristic survey (.txt, .pdf, .html, .eml), finds the
taxon entries and writes one row per taxon with its elevation range in
meters to OUTPUT_DIR/<name>.csv.

Example:
  taxelev flora_2019.pdf -s "Ranunculaceae" -e "Index" -u ft
  taxelev flora_2019.pdf -d 3 4
  taxelev flora_2019.pdf -v > flora_2019.txt`,
		Version:       version,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := inputArg(cmd, args)
			if err != nil {
				return err
			}
			return runExtract(cmd, cfg, path)
		},
	}

	f := cmd.Flags()
	f.StringP("start", "s", "", "text that marks where parsing starts")
	f.StringP("end", "e", "", "text that marks where parsing stops")
	f.StringP("unit", "u", "meter", "elevation unit: m|meter|ft|feet")
	f.StringP("case", "c", "lowercase", "case of the genus and epithet: L|lowercase|U|uppercase")
	f.IntSliceP("digit", "d", nil, "min and max digits of an elevation value: -d 3 4, -d 3,4 or -d 3 -d 4")
	f.BoolP("parse_elevs", "p", false, "collect every elevation of a record, unit detected per value")
	f.BoolP("id", "i", false, "add a 1-based id column")
	f.BoolP("view", "v", false, "print the sanitized text and exit")
	f.StringP("output_name", "n", "", "output file name without extension (default: input file name)")
	f.String("format", "csv", "output format: csv|xlsx")

	cmd.AddCommand(newRulesCmd(cfg))
	cmd.AddCommand(newRunsCmd(cfg))
	cmd.AddCommand(newMailCmd(cfg))
	return cmd
}

// inputArg returns the input path. "-d 3 4" leaves the second digit among the
// positional arguments; it is moved back into the flag here.
func inputArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	digits, _ := cmd.Flags().GetIntSlice("digit")
	if cmd.Flags().Changed("digit") && len(digits) == 1 {
		for i, arg := range args {
			if _, err := strconv.Atoi(arg); err != nil {
				continue
			}
			if err := cmd.Flags().Set("digit", arg); err != nil {
				return "", err
			}
			return args[1-i], nil
		}
	}
	return "", fmt.Errorf("accepts 1 arg(s), received %d", len(args))
}

// optionsFromFlags validates the extraction flags before any input is read.
func optionsFromFlags(cmd *cobra.Command) (internal.Options, error) {
	f := cmd.Flags()
	start, _ := f.GetString("start")
	end, _ := f.GetString("end")
	unitFlag, _ := f.GetString("unit")
	caseFlag, _ := f.GetString("case")
	digits, _ := f.GetIntSlice("digit")
	parseElevs, _ := f.GetBool("parse_elevs")

	unit, err := internal.ParseUnit(unitFlag)
	if err != nil {
		return internal.Options{}, err
	}
	nameCase, err := internal.ParseNameCase(caseFlag)
	if err != nil {
		return internal.Options{}, err
	}
	var digitRange *internal.DigitRange
	if f.Changed("digit") {
		if len(digits) != 2 {
			return internal.Options{}, fmt.Errorf("%w: --digit takes 2 values, %d given", internal.ErrInvalidDigitRange, len(digits))
		}
		digitRange, err = internal.NewDigitRange(digits)
		if err != nil {
			return internal.Options{}, err
		}
	}

	return internal.Options{
		Start:          start,
		End:            end,
		Unit:           unit,
		Case:           nameCase,
		Digits:         digitRange,
		ParseElevation: parseElevs,
	}, nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "csv" && format != "xlsx" {
		return "", fmt.Errorf("%w: --format %q (want csv or xlsx)", pipeline.ErrUnsupportedFormat, format)
	}
	return format, nil
}

func runExtract(cmd *cobra.Command, cfg config.Config, path string) error {
	if _, err := pipeline.DetectFormat(path); err != nil {
		return err
	}
	opts, err := optionsFromFlags(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	view, _ := cmd.Flags().GetBool("view")
	withID, _ := cmd.Flags().GetBool("id")
	outputName, _ := cmd.Flags().GetString("output_name")

	doc, err := pipeline.ReadDocument(path)
	if err != nil {
		return err
	}

	// View mode uses stored rules when there is a store, but never creates one.
	var db *storage.DB
	var store corrections.Store
	if _, statErr := os.Stat(cfg.DBPath); !view || statErr == nil {
		db, err = storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	}
	table, err := corrections.Load(cfg.CorrectionsFile, store)
	if err != nil {
		return err
	}
	parser, err := pipeline.NewParser(opts, table.Lookup(doc.Key))
	if err != nil {
		return fmt.Errorf("%s: %w", doc.Key, err)
	}

	out := cmd.OutOrStdout()
	if view {
		_, err := fmt.Fprintln(out, parser.Sanitize(doc.Text))
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	run := pipeline.NewRunRow("", doc.Key, opts, 0, 0)
	ctx = logging.WithTrace(ctx, run.TraceID)

	res, err := parser.Parse(ctx, doc.Text)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(outputName)
	if name == "" {
		name = doc.Key
	}
	outputPath := filepath.Join(cfg.OutputDir, name+"."+format)
	if err := pipeline.ExportRows(res.Rows, outputPath, pipeline.ExportOptions{Separator: cfg.CSVSeparator, Index: withID}); err != nil {
		return err
	}

	run = pipeline.NewRunRow(run.TraceID, name, opts, res.Records, res.Skipped)
	if docRow, err := registerFile(db, path, doc); err == nil {
		run.DocumentID = docRow.ID
	} else {
		logging.FromContext(ctx).Warn("document not registered", "path", path, "err", err)
	}
	runID, err := db.InsertRun(run, res.Rows)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "lines=%d records=%d rows=%d skipped=%d\n", res.Lines, res.Records, len(res.Rows), res.Skipped)
	if res.Halted {
		fmt.Fprintln(out, "stopped at end delimiter")
	}
	fmt.Fprintf(out, "run %d written to %s\n", runID, outputPath)
	return nil
}

// registerFile records a local input in the documents table, keyed by its
// absolute path. Its table is already written, so it is stored as exported.
func registerFile(db *storage.DB, path string, doc pipeline.Document) (internal.DocumentRow, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	sum := sha256.Sum256([]byte(doc.Text))
	return db.UpsertDocument(internal.DocumentRow{
		Source:     internal.SourceFile,
		Provider:   string(internal.SourceFile),
		ExternalID: abs,
		Name:       doc.Key,
		Hash:       hex.EncodeToString(sum[:]),
		Status:     internal.StatusExported,
		RawRef:     abs,
	})
}

func newRulesCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage per-document correction rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <document> <pattern> <replacement>",
		Short: "Append a correction rule for a document (file name without extension)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := pattern.Rule{Pattern: args[1], Replacement: args[2]}
			if _, err := pattern.CompileRules([]pattern.Rule{rule}); err != nil {
				return err
			}
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.AddCorrection(args[0], rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rule added for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [document]",
		Short: "List correction rules from the rules file and the store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			table, err := corrections.Load(cfg.CorrectionsFile, db)
			if err != nil {
				return err
			}

			keys := table.Keys()
			if len(args) == 1 {
				keys = []string{args[0]}
			}
			out := cmd.OutOrStdout()
			for _, key := range keys {
				fmt.Fprintf(out, "%s:\n", key)
				for i, r := range table.Lookup(key) {
					fmt.Fprintf(out, "  %d. %q -> %q\n", i+1, r.Pattern, r.Replacement)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <document>",
		Short: "Delete the stored correction rules of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := db.DeleteCorrections(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rules for %s\n", n, args[0])
			return nil
		},
	})

	return cmd
}

func newRunsCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and re-export past extractions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%d\t%s\t%s\trecords=%d rows=%d skipped=%d\t%s\n", r.ID, r.CreatedAt, r.Name, r.Records, r.Rows, r.Skipped, r.Options)
			}
			return nil
		},
	}
	list.Flags().Int("limit", 20, "max runs to show")
	cmd.AddCommand(list)

	export := &cobra.Command{
		Use:   "export",
		Short: "Write the rows of a stored run to OUTPUT_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetInt("run")
			withID, _ := cmd.Flags().GetBool("id")
			outputName, _ := cmd.Flags().GetString("output_name")
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			run, err := db.GetRun(runID)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %d not found", runID)
			}
			rows, err := db.GetRunTaxa(run.ID)
			if err != nil {
				return err
			}

			name := strings.TrimSpace(outputName)
			if name == "" {
				name = fmt.Sprintf("%s_run%d", run.Name, run.ID)
			}
			outputPath := filepath.Join(cfg.OutputDir, name+"."+format)
			if err := pipeline.ExportRows(rows, outputPath, pipeline.ExportOptions{Separator: cfg.CSVSeparator, Index: withID}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", len(rows), outputPath)
			return nil
		},
	}
	export.Flags().Int("run", 0, "run id")
	export.Flags().BoolP("id", "i", false, "add a 1-based id column")
	export.Flags().StringP("output_name", "n", "", "output file name without extension")
	export.Flags().String("format", "csv", "output format: csv|xlsx")
	_ = export.MarkFlagRequired("run")
	cmd.AddCommand(export)

	return cmd
}

func newMailCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Fetch and process survey mails",
	}

	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Store unseen messages of a mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			label, _ := cmd.Flags().GetString("label")
			maxMessages, _ := cmd.Flags().GetInt("max")

			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			conn, err := listener.NewConnector(cmd.Context(), cfg, provider)
			if err != nil {
				return err
			}
			result, err := connectors.NewFetchService(db, cfg.RawDocDir, conn).FetchAndStore(label, maxMessages)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mail fetch done provider=%s fetched=%d stored=%d new=%d\n", provider, result.Fetched, result.Stored, result.New)
			return nil
		},
	}
	fetch.Flags().String("provider", cfg.ListenerProvider, "gmail|imap")
	fetch.Flags().String("label", cfg.ListenerLabel, "mailbox/label")
	fetch.Flags().Int("max", 50, "max messages")
	cmd.AddCommand(fetch)

	process := &cobra.Command{
		Use:   "process",
		Short: "Extract rows from fetched mails",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			messageID, _ := cmd.Flags().GetString("message-id")
			batch, _ := cmd.Flags().GetInt("batch")

			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			processor, err := pipeline.NewProcessingService(db, cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(messageID) != "" {
				res, err := processor.ProcessByExternalID(cmd.Context(), provider, messageID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "processed document id=%d run=%d surveys=%d rows=%d skipped=%d\n", res.DocumentID, res.RunID, res.Surveys, res.Rows, res.Skipped)
				return nil
			}
			docs, rows, err := processor.ProcessPending(cmd.Context(), batch, provider)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "processed pending documents=%d rows=%d\n", docs, rows)
			return nil
		},
	}
	process.Flags().String("provider", "", "only documents from this provider (gmail|imap)")
	process.Flags().String("message-id", "", "process one message by its Message-ID")
	process.Flags().Int("batch", 20, "batch size")
	cmd.AddCommand(process)

	cmd.AddCommand(&cobra.Command{
		Use:   "listen",
		Short: "Poll the survey inbox until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return listener.NewService(db, cfg).Run(cmd.Context())
		},
	})

	return cmd
}
