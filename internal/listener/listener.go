package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"taxelev/internal"
	"taxelev/internal/config"
	"taxelev/internal/connectors"
	gmailconnector "taxelev/internal/connectors/gmail"
	imapconnector "taxelev/internal/connectors/imap"
	"taxelev/internal/pipeline"
	"taxelev/internal/storage"
	"taxelev/internal/util"
)

const exportBatch = 200

// Service polls the survey inbox: fetch, process, export, sleep.
type Service struct {
	db  *storage.DB
	cfg config.Config
}

func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

// Run loops until ctx is cancelled. A failed cycle is logged and retried on
// the next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(max(s.cfg.ListenerIntervalSec, 1)) * time.Second
	slog.Info("listener started", "provider", s.provider(), "label", s.cfg.ListenerLabel, "interval", interval)
	for {
		if err := s.RunCycle(ctx); err != nil {
			slog.Error("listener cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Rows      int
	Exported  int
}

func (s *Service) RunCycle(ctx context.Context) error {
	provider := s.provider()
	mailConnector, err := NewConnector(ctx, s.cfg, provider)
	if err != nil {
		return err
	}
	res, err := s.cycle(ctx, provider, mailConnector)
	if err != nil {
		return err
	}
	slog.Info("listener cycle done", "provider", provider, "fetched", res.Fetched, "stored", res.Stored, "processed", res.Processed, "rows", res.Rows, "exported", res.Exported)
	return nil
}

func (s *Service) cycle(ctx context.Context, provider string, mailConnector connectors.MailConnector) (CycleResult, error) {
	fetchService := connectors.NewFetchService(s.db, s.cfg.RawDocDir, mailConnector)
	fetched, err := fetchService.FetchAndStore(s.cfg.ListenerLabel, s.cfg.ListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Fetched: fetched.Fetched, Stored: fetched.Stored}

	processor, err := pipeline.NewProcessingService(s.db, s.cfg)
	if err != nil {
		return res, err
	}
	res.Processed, res.Rows, err = processor.ProcessPending(ctx, s.cfg.ListenerProcessBatch, provider)
	if err != nil {
		return res, err
	}

	if s.cfg.ListenerAutoExport {
		res.Exported, err = s.ExportProcessed(provider)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// ExportProcessed writes the latest run of every processed document to
// OUTPUT_DIR/listener and marks the document exported. A processed document
// without rows is marked skipped so it leaves the export queue.
func (s *Service) ExportProcessed(provider string) (int, error) {
	docs, err := s.db.ListDocumentsByStatusAndProvider(internal.StatusProcessed, provider, exportBatch)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, doc := range docs {
		var rows []internal.Row
		runID, err := s.db.LatestRunForDocument(doc.ID)
		if err != nil {
			return exported, err
		}
		if runID > 0 {
			rows, err = s.db.GetRunTaxa(runID)
			if err != nil {
				return exported, err
			}
		}
		if len(rows) == 0 {
			if err := s.db.UpdateDocumentStatus(doc.ID, internal.StatusSkipped); err != nil {
				return exported, err
			}
			continue
		}

		filename := fmt.Sprintf("%d_%s.csv", doc.ID, util.SafeFileName(doc.Name))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportRows(rows, outputPath, pipeline.ExportOptions{Separator: s.cfg.CSVSeparator}); err != nil {
			return exported, err
		}
		if err := s.db.UpdateDocumentStatus(doc.ID, internal.StatusExported); err != nil {
			return exported, err
		}
		exported++
		slog.Debug("document exported", "document_id", doc.ID, "path", outputPath, "rows", len(rows))
	}
	return exported, nil
}

func (s *Service) provider() string {
	return strings.ToLower(strings.TrimSpace(s.cfg.ListenerProvider))
}

// NewConnector builds the mail connector for provider (imap or gmail).
func NewConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
