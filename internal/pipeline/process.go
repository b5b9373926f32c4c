package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"taxelev/internal"
	"taxelev/internal/config"
	"taxelev/internal/corrections"
	"taxelev/internal/logging"
	"taxelev/internal/storage"
	"taxelev/internal/util"
)

// ProcessingService extracts rows from stored survey mails using the
// configured default options.
type ProcessingService struct {
	db    *storage.DB
	opts  internal.Options
	table corrections.Table
}

func NewProcessingService(db *storage.DB, cfg config.Config) (*ProcessingService, error) {
	opts, err := cfg.DefaultOptions()
	if err != nil {
		return nil, err
	}
	table, err := corrections.Load(cfg.CorrectionsFile, db)
	if err != nil {
		return nil, err
	}
	return &ProcessingService{db: db, opts: opts, table: table}, nil
}

type ProcessResult struct {
	DocumentID int
	RunID      int
	Parts      int
	Surveys    int
	Rows       int
	Skipped    int
}

func (s *ProcessingService) ProcessByExternalID(ctx context.Context, provider, externalID string) (ProcessResult, error) {
	doc, err := s.db.MustDocumentByExternalID(provider, externalID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessDocument(ctx, doc)
}

// ProcessPending handles up to limit fetched documents, oldest first. A
// document that fails is marked failed and the batch goes on.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListDocumentsByStatusAndProvider(internal.StatusFetched, provider, limit)
	if err != nil {
		return 0, 0, err
	}
	processedDocs := 0
	extractedRows := 0
	for _, doc := range pending {
		if err := ctx.Err(); err != nil {
			return processedDocs, extractedRows, err
		}
		res, err := s.ProcessDocument(ctx, doc)
		if err != nil {
			logging.WithFields(ctx, "document_id", doc.ID).Error("document processing failed", "err", err)
			if err := s.db.UpdateDocumentStatus(doc.ID, internal.StatusFailed); err != nil {
				return processedDocs, extractedRows, err
			}
			continue
		}
		processedDocs++
		extractedRows += res.Rows
	}
	return processedDocs, extractedRows, nil
}

// ProcessDocument runs every decodable part of a stored mail through the
// parser. Parts that do not look like survey text are ignored. A mail with
// no survey part gets no run; a mail without rows is marked skipped.
func (s *ProcessingService) ProcessDocument(ctx context.Context, doc internal.DocumentRow) (ProcessResult, error) {
	start := time.Now()
	trace := uuid.NewString()
	ctx = logging.WithTrace(ctx, trace)
	log := logging.WithFields(ctx, "document_id", doc.ID, "name", doc.Name)

	raw, err := os.ReadFile(doc.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}
	parts, err := DecodeEmail(raw)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("decode %s: %w", doc.RawRef, err)
	}

	res := ProcessResult{DocumentID: doc.ID, Parts: len(parts)}
	var rows []internal.Row
	records := 0
	for _, part := range parts {
		key := partKey(doc, part)
		parser, err := NewParser(s.opts, s.table.Lookup(key))
		if err != nil {
			return ProcessResult{}, fmt.Errorf("part %s: %w", part.Name, err)
		}

		text := parser.Sanitize(part.Text)
		detect := DetectSurvey(doc.Name, text, parser.Patterns())
		log.Debug("survey detection", "part", part.Name, "score", detect.Score, "heads", detect.HeadHits, "elevations", detect.ElevHits, "reason", detect.Reason)
		if !detect.IsSurvey {
			continue
		}

		out, err := parser.ParseSanitized(ctx, text)
		if err != nil {
			return ProcessResult{}, err
		}
		res.Surveys++
		records += out.Records
		res.Skipped += out.Skipped
		rows = append(rows, out.Rows...)
	}
	res.Rows = len(rows)

	// Nothing to export: the document is final as skipped.
	status := internal.StatusProcessed
	if res.Rows == 0 {
		status = internal.StatusSkipped
	}

	if res.Surveys > 0 {
		run := NewRunRow(trace, doc.Name, s.opts, records, res.Skipped)
		run.DocumentID = doc.ID
		runID, err := s.db.InsertRun(run, rows)
		if err != nil {
			return ProcessResult{}, err
		}
		res.RunID = runID
	}

	if err := s.db.UpdateDocumentStatus(doc.ID, status); err != nil {
		return ProcessResult{}, err
	}
	log.Info("document processed", "status", status, "parts", res.Parts, "surveys", res.Surveys, "rows", res.Rows, "skipped", res.Skipped, "ms", time.Since(start).Milliseconds())
	return res, nil
}

// partKey files body corrections under the mail name and attachment
// corrections under the attachment's file stem.
func partKey(doc internal.DocumentRow, part EmailPart) string {
	if part.Name == "body" {
		return util.SafeFileName(doc.Name)
	}
	return util.DocumentKey(part.Name)
}

type runOptions struct {
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	Unit           string `json:"unit,omitempty"`
	Case           string `json:"case"`
	Digits         []int  `json:"digits,omitempty"`
	ParseElevation bool   `json:"parseElevations"`
}

// NewRunRow describes one extraction for the run history.
func NewRunRow(traceID, name string, opts internal.Options, records, skipped int) internal.RunRow {
	ro := runOptions{
		Start:          opts.Start,
		End:            opts.End,
		Unit:           string(opts.EffectiveUnit()),
		Case:           string(opts.Case),
		ParseElevation: opts.ParseElevation,
	}
	if ro.Case == "" {
		ro.Case = string(internal.CaseLower)
	}
	if opts.Digits != nil {
		ro.Digits = []int{opts.Digits.Min, opts.Digits.Max}
	}
	encoded, _ := json.Marshal(ro)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return internal.RunRow{
		TraceID: traceID,
		Name:    name,
		Options: string(encoded),
		Records: records,
		Skipped: skipped,
	}
}
