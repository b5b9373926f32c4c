package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"taxelev/internal"
	"taxelev/internal/pattern"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  provider TEXT NOT NULL DEFAULT '',
  externalId TEXT NOT NULL,
  name TEXT NOT NULL,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, externalId)
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  documentId INTEGER,
  name TEXT NOT NULL,
  optionsJson TEXT NOT NULL,
  records INTEGER NOT NULL,
  rowCount INTEGER NOT NULL,
  skipped INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS taxa (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  position INTEGER NOT NULL,
  scientificName TEXT NOT NULL,
  elevMin INTEGER NOT NULL,
  elevMax INTEGER NOT NULL,
  UNIQUE(runId, position),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS corrections (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentKey TEXT NOT NULL,
  position INTEGER NOT NULL,
  pattern TEXT NOT NULL,
  replacement TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(documentKey, position)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertDocument(doc internal.DocumentRow) (internal.DocumentRow, error) {
	status := doc.Status
	if status == "" {
		status = internal.StatusFetched
	}
	_, err := d.conn.Exec(`
INSERT INTO documents (source, provider, externalId, name, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, externalId) DO UPDATE SET
  name=excluded.name,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, string(doc.Source), doc.Provider, doc.ExternalID, doc.Name, doc.ReceivedAt, doc.Hash, status, doc.RawRef)
	if err != nil {
		return internal.DocumentRow{}, err
	}

	row, err := d.GetDocumentByExternalID(doc.Provider, doc.ExternalID)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, errors.New("failed to upsert document")
	}
	return *row, nil
}

const documentColumns = `id, source, provider, externalId, name, receivedAt, hash, status, rawRef`

func scanDocument(scan func(dest ...any) error) (internal.DocumentRow, error) {
	var row internal.DocumentRow
	var source string
	var receivedAt sql.NullString
	err := scan(&row.ID, &source, &row.Provider, &row.ExternalID, &row.Name, &receivedAt, &row.Hash, &row.Status, &row.RawRef)
	row.Source = internal.DocumentSource(source)
	row.ReceivedAt = receivedAt.String
	return row, err
}

func (d *DB) GetDocumentByExternalID(provider, externalID string) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE provider = ? AND externalId = ?`, provider, externalID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetDocumentByID(id int) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustDocumentByExternalID(provider, externalID string) (internal.DocumentRow, error) {
	row, err := d.GetDocumentByExternalID(provider, externalID)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, fmt.Errorf("document not found: provider=%s externalId=%s", provider, externalID)
	}
	return *row, nil
}

func (d *DB) ListDocumentsByStatus(status string, limit int) ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		row, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListDocumentsByStatusAndProvider is ListDocumentsByStatus limited to one
// provider; an empty provider matches all of them.
func (d *DB) ListDocumentsByStatusAndProvider(status, provider string, limit int) ([]internal.DocumentRow, error) {
	if provider == "" {
		return d.ListDocumentsByStatus(status, limit)
	}
	rows, err := d.conn.Query(`SELECT `+documentColumns+` FROM documents WHERE status = ? AND provider = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		row, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateDocumentStatus(documentID int, status string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, documentID)
	return err
}

// InsertRun stores a run and its rows in one transaction and returns the run id.
func (d *DB) InsertRun(run internal.RunRow, taxa []internal.Row) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var documentID any
	if run.DocumentID > 0 {
		documentID = run.DocumentID
	}
	result, err := tx.Exec(`
INSERT INTO runs (traceId, documentId, name, optionsJson, records, rowCount, skipped)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, documentID, run.Name, run.Options, run.Records, len(taxa), run.Skipped)
	if err != nil {
		return 0, err
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO taxa (runId, position, scientificName, elevMin, elevMax) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, t := range taxa {
		if _, err := stmt.Exec(runID, i+1, t.ScientificName, t.ElevationMin, t.ElevationMax); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(runID), nil
}

const runColumns = `id, traceId, COALESCE(documentId, 0), name, optionsJson, records, rowCount, skipped, createdAt`

func (d *DB) GetRun(id int) (*internal.RunRow, error) {
	var r internal.RunRow
	err := d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id).Scan(
		&r.ID, &r.TraceID, &r.DocumentID, &r.Name, &r.Options, &r.Records, &r.Rows, &r.Skipped, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	rows, err := d.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var r internal.RunRow
		if err := rows.Scan(&r.ID, &r.TraceID, &r.DocumentID, &r.Name, &r.Options, &r.Records, &r.Rows, &r.Skipped, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRunForDocument returns the newest run id for a document, or 0.
func (d *DB) LatestRunForDocument(documentID int) (int, error) {
	var id int
	err := d.conn.QueryRow(`SELECT id FROM runs WHERE documentId = ? ORDER BY id DESC LIMIT 1`, documentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// GetRunTaxa returns the rows of a run in extraction order.
func (d *DB) GetRunTaxa(runID int) ([]internal.Row, error) {
	rows, err := d.conn.Query(`SELECT scientificName, elevMin, elevMax FROM taxa WHERE runId = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Row
	for rows.Next() {
		var r internal.Row
		if err := rows.Scan(&r.ScientificName, &r.ElevationMin, &r.ElevationMax); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddCorrection appends a rule to the end of a document's rule list.
func (d *DB) AddCorrection(documentKey string, rule pattern.Rule) error {
	_, err := d.conn.Exec(`
INSERT INTO corrections (documentKey, position, pattern, replacement)
VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM corrections WHERE documentKey = ?), ?, ?)
`, documentKey, documentKey, rule.Pattern, rule.Replacement)
	return err
}

func (d *DB) DeleteCorrections(documentKey string) (int, error) {
	result, err := d.conn.Exec(`DELETE FROM corrections WHERE documentKey = ?`, documentKey)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// ListCorrections returns every stored rule grouped by document key, each
// list in insertion order.
func (d *DB) ListCorrections() (map[string][]pattern.Rule, error) {
	rows, err := d.conn.Query(`SELECT documentKey, pattern, replacement FROM corrections ORDER BY documentKey ASC, position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]pattern.Rule{}
	for rows.Next() {
		var key string
		var r pattern.Rule
		if err := rows.Scan(&key, &r.Pattern, &r.Replacement); err != nil {
			return nil, err
		}
		out[key] = append(out[key], r)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
