package connectors

import (
	"log/slog"

	"taxelev/internal"
	"taxelev/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *DocumentStoreService
}

type FetchResult struct {
	Fetched int
	Stored  int
	New     int
}

func NewFetchService(db *storage.DB, rawDir string, connector MailConnector) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewDocumentStoreService(db, rawDir),
	}
}

// FetchAndStore pulls up to max messages from label and stores each one.
// New counts documents still waiting for processing.
func (s *FetchService) FetchAndStore(label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		doc, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		res.Stored++
		if doc.Status == internal.StatusFetched {
			res.New++
		}
		slog.Debug("document stored", "provider", doc.Provider, "external_id", doc.ExternalID, "status", doc.Status)
	}

	return res, nil
}
