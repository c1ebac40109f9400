package versions

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"govportal/internal/db"
	"govportal/internal/questionset"
	"govportal/internal/workbook"

	"golang.org/x/crypto/blake2b"
)

// createdAtLayout is fixed width so created_at sorts chronologically as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidWorkbook = errors.New("workbook could not be read")
)

type Service struct {
	db      *sql.DB
	dialect db.Dialect
	now     func() time.Time
}

// Summary is a stored version without its payload.
type Summary struct {
	questionset.Version
	Questions  int `json:"questions"`
	Categories int `json:"categories"`
}

type ImportReport struct {
	VersionID    string                `json:"version_id"`
	SourceDigest string                `json:"source_digest"`
	Questions    int                   `json:"questions"`
	Categories   int                   `json:"categories"`
	Sections     int                   `json:"sections"`
	Warnings     []questionset.Warning `json:"warnings"`
}

// NewService migrates the version table and returns a store backed by conn.
func NewService(ctx context.Context, conn *sql.DB, dialect db.Dialect) (*Service, error) {
	s := &Service{db: conn, dialect: dialect, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Service) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS question_set_versions (
		version_id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		is_draft BOOLEAN NOT NULL,
		is_published BOOLEAN NOT NULL,
		source_digest TEXT NOT NULL DEFAULT '',
		question_count INTEGER NOT NULL DEFAULT 0,
		category_count INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Service) q(query string) string {
	return s.dialect.Rebind(query)
}

// Save stores a built question set. Versions are immutable once saved.
func (s *Service) Save(ctx context.Context, qs questionset.QuestionSet) error {
	if strings.TrimSpace(qs.Version.VersionID) == "" {
		return fmt.Errorf("%w: version id is required", ErrInvalidInput)
	}
	payload, err := json.Marshal(qs)
	if err != nil {
		return fmt.Errorf("encode question set: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM question_set_versions WHERE version_id = ?`), qs.Version.VersionID).Scan(&exists)
	if err == nil {
		return &questionset.DuplicateVersionError{VersionID: qs.Version.VersionID}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check version: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO question_set_versions
			(version_id, created_at, is_draft, is_published, source_digest, question_count, category_count, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		qs.Version.VersionID,
		qs.Version.CreatedAt.UTC().Format(createdAtLayout),
		qs.Version.IsDraft,
		qs.Version.IsPublished,
		qs.Version.SourceDigest,
		len(qs.Questions),
		len(qs.Categories),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return tx.Commit()
}

// Get loads a version with its current draft/published flags.
func (s *Service) Get(ctx context.Context, versionID string) (questionset.QuestionSet, error) {
	versionID = strings.TrimSpace(versionID)
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT is_draft, is_published, payload
		FROM question_set_versions
		WHERE version_id = ?`), versionID)
	qs, err := scanSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return questionset.QuestionSet{}, &questionset.UnknownVersionError{VersionID: versionID}
	}
	return qs, err
}

// Active returns the published version.
func (s *Service) Active(ctx context.Context) (questionset.QuestionSet, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT is_draft, is_published, payload
		FROM question_set_versions
		WHERE is_published = ?
		ORDER BY created_at DESC
		LIMIT 1`), true)
	qs, err := scanSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return questionset.QuestionSet{}, questionset.ErrNoActiveVersion
	}
	return qs, err
}

func scanSet(row *sql.Row) (questionset.QuestionSet, error) {
	var (
		qs        questionset.QuestionSet
		draft     bool
		published bool
		payload   string
	)
	if err := row.Scan(&draft, &published, &payload); err != nil {
		return qs, err
	}
	if err := json.Unmarshal([]byte(payload), &qs); err != nil {
		return qs, fmt.Errorf("decode question set: %w", err)
	}
	qs.Version.IsDraft = draft
	qs.Version.IsPublished = published
	return qs, nil
}

// List returns every stored version, newest first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version_id, created_at, is_draft, is_published, source_digest, question_count, category_count
		FROM question_set_versions
		ORDER BY created_at DESC, version_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var (
			it        Summary
			createdAt string
		)
		if err := rows.Scan(&it.VersionID, &createdAt, &it.IsDraft, &it.IsPublished, &it.SourceDigest, &it.Questions, &it.Categories); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		it.CreatedAt, _ = time.Parse(createdAtLayout, createdAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

// Publish makes versionID the only published version and clears its draft flag.
func (s *Service) Publish(ctx context.Context, versionID string) (*Summary, error) {
	versionID = strings.TrimSpace(versionID)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.requireVersion(ctx, tx, versionID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE question_set_versions SET is_published = ? WHERE version_id <> ?`), false, versionID); err != nil {
		return nil, fmt.Errorf("clear published: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE question_set_versions SET is_published = ?, is_draft = ? WHERE version_id = ?`), true, false, versionID); err != nil {
		return nil, fmt.Errorf("publish version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publish: %w", err)
	}
	log.Printf("question set %s published", versionID)
	return s.summary(ctx, versionID)
}

// Unpublish withdraws versionID. The draft flag stays cleared.
func (s *Service) Unpublish(ctx context.Context, versionID string) (*Summary, error) {
	versionID = strings.TrimSpace(versionID)
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE question_set_versions SET is_published = ? WHERE version_id = ?`), false, versionID)
	if err != nil {
		return nil, fmt.Errorf("unpublish version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &questionset.UnknownVersionError{VersionID: versionID}
	}
	log.Printf("question set %s unpublished", versionID)
	return s.summary(ctx, versionID)
}

func (s *Service) requireVersion(ctx context.Context, tx *sql.Tx, versionID string) error {
	var one int
	err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM question_set_versions WHERE version_id = ?`), versionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &questionset.UnknownVersionError{VersionID: versionID}
	}
	return err
}

func (s *Service) summary(ctx context.Context, versionID string) (*Summary, error) {
	var (
		it        Summary
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT version_id, created_at, is_draft, is_published, source_digest, question_count, category_count
		FROM question_set_versions
		WHERE version_id = ?`), versionID).
		Scan(&it.VersionID, &createdAt, &it.IsDraft, &it.IsPublished, &it.SourceDigest, &it.Questions, &it.Categories)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &questionset.UnknownVersionError{VersionID: versionID}
	}
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	it.CreatedAt, _ = time.Parse(createdAtLayout, createdAt)
	return &it, nil
}

// Parse checks and builds a workbook without storing it.
func Parse(fileName string, r io.Reader, now func() time.Time) (questionset.QuestionSet, []questionset.Warning, error) {
	if err := workbook.CheckExtension(fileName); err != nil {
		return questionset.QuestionSet{}, nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return questionset.QuestionSet{}, nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return questionset.QuestionSet{}, nil, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}

	wb, err := workbook.Open(bytes.NewReader(data))
	if err != nil {
		return questionset.QuestionSet{}, nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	if err := workbook.Validate(wb); err != nil {
		return questionset.QuestionSet{}, nil, err
	}

	qs, warnings, err := questionset.BuildFromWorkbook(fileName, wb, now)
	if err != nil {
		return questionset.QuestionSet{}, warnings, err
	}
	sum := blake2b.Sum256(data)
	qs.Version.SourceDigest = hex.EncodeToString(sum[:])
	return qs, warnings, nil
}

// Import parses an uploaded workbook and stores it as a new draft version.
func (s *Service) Import(ctx context.Context, fileName string, r io.Reader) (*ImportReport, error) {
	qs, warnings, err := Parse(fileName, r, s.now)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, qs); err != nil {
		return nil, err
	}

	if warnings == nil {
		warnings = []questionset.Warning{}
	}
	rep := &ImportReport{
		VersionID:    qs.Version.VersionID,
		SourceDigest: qs.Version.SourceDigest,
		Questions:    len(qs.Questions),
		Categories:   len(qs.Categories),
		Sections:     len(qs.Sections()),
		Warnings:     warnings,
	}
	log.Printf("question set %s imported: questions=%d categories=%d warnings=%d", rep.VersionID, rep.Questions, rep.Categories, len(rep.Warnings))
	return rep, nil
}
