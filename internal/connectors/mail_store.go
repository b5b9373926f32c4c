package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"taxelev/internal"
	"taxelev/internal/storage"
	"taxelev/internal/util"
)

// DocumentStoreService keeps raw inbound documents on disk, named by content
// hash, and registers them in the documents table.
type DocumentStoreService struct {
	db     *storage.DB
	rawDir string
}

func NewDocumentStoreService(db *storage.DB, rawDir string) *DocumentStoreService {
	return &DocumentStoreService{db: db, rawDir: rawDir}
}

// Store is idempotent per provider and message id; a message seen again
// keeps its processing status.
func (s *DocumentStoreService) Store(msg internal.InboundMessage) (internal.DocumentRow, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(s.rawDir, 0o755); err != nil {
		return internal.DocumentRow{}, err
	}

	rawPath := filepath.Join(s.rawDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.DocumentRow{}, err
		}
	}

	return s.db.UpsertDocument(internal.DocumentRow{
		Source:     internal.SourceEmail,
		Provider:   msg.Provider,
		ExternalID: msg.MessageID,
		Name:       util.FirstNonEmpty(msg.Subject, msg.MessageID),
		ReceivedAt: msg.ReceivedAt,
		Hash:       hash,
		Status:     internal.StatusFetched,
		RawRef:     rawPath,
	})
}
