package main

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// 001_create_article_protocols.up.sql or 001_create_article_protocols.down.sql
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

var (
	// ErrNoMigrations is returned when the filesystem holds no migration file.
	ErrNoMigrations = errors.New("no embedded migration files found")

	// ErrInvalidFilename is returned for names outside the 001_name.(up|down).sql format.
	ErrInvalidFilename = errors.New("invalid migration filename")

	// ErrOrphanedMigration is returned when an up file has no down file or the reverse.
	ErrOrphanedMigration = errors.New("orphaned migration")

	// ErrSequenceGap is returned when sequence numbers do not run 001, 002, … without holes.
	ErrSequenceGap = errors.New("gap in migration sequence")

	// ErrChecksumMismatch is returned when a file changed since it was first validated.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

type (
	// EmbeddedMigration gives access to the migrations compiled into the binary and checks
	// that they form a consistent, paired, gap-free sequence.
	EmbeddedMigration struct {
		fs        fs.FS
		checksums map[string]string
	}

	// MigrationInfo is the parsed form of a migration filename.
	MigrationInfo struct {
		Sequence  int
		Name      string
		Direction string
		Filename  string
	}
)

// NewEmbeddedMigration wraps filesystem, or the embedded migrations when filesystem is nil.
func NewEmbeddedMigration(filesystem fs.FS) *EmbeddedMigration {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &EmbeddedMigration{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// FS returns the migration filesystem, suitable for the iofs source driver.
func (e *EmbeddedMigration) FS() fs.FS {
	return e.fs
}

// List returns the well-named .sql files in lexical order. Other files are ignored.
func (e *EmbeddedMigration) List() ([]string, error) {
	entries, err := fs.ReadDir(e.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		if migrationFilenameRegex.MatchString(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	slices.Sort(files)

	return files, nil
}

// Validate checks pairing, sequence and, from the second call on, that no file content changed.
func (e *EmbeddedMigration) Validate() error {
	files, err := e.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoMigrations
	}

	infos := make([]*MigrationInfo, 0, len(files))

	for _, file := range files {
		info, err := ParseMigrationFilename(file)
		if err != nil {
			return err
		}

		infos = append(infos, info)
	}

	if err := validatePairing(infos); err != nil {
		return err
	}

	if err := validateSequence(infos); err != nil {
		return err
	}

	sums := make(map[string]string, len(files))

	for _, file := range files {
		content, err := fs.ReadFile(e.fs, file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		sum := sha256.Sum256(content)
		sums[file] = hex.EncodeToString(sum[:])

		if previous, seen := e.checksums[file]; seen && previous != sums[file] {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, file)
		}
	}

	e.checksums = sums

	return nil
}

// MaxSequence returns the highest sequence number embedded, 0 when none can be read.
func (e *EmbeddedMigration) MaxSequence() int {
	files, err := e.List()
	if err != nil {
		return 0
	}

	highest := 0

	for _, file := range files {
		if info, err := ParseMigrationFilename(file); err == nil && info.Sequence > highest {
			highest = info.Sequence
		}
	}

	return highest
}

// ParseMigrationFilename splits a filename into sequence, name and direction.
func ParseMigrationFilename(filename string) (*MigrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 { //nolint:mnd
		return nil, fmt.Errorf("%w: %s (expected: 001_name.up.sql or 001_name.down.sql)",
			ErrInvalidFilename, filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFilename, filename, err)
	}

	return &MigrationInfo{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

func validatePairing(infos []*MigrationInfo) error {
	directions := make(map[string]map[string]bool)

	var keys []string

	for _, info := range infos {
		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
			keys = append(keys, key)
		}

		directions[key][info.Direction] = true
	}

	for _, key := range keys {
		if !directions[key]["up"] {
			return fmt.Errorf("%w: missing up migration for %s", ErrOrphanedMigration, key)
		}

		if !directions[key]["down"] {
			return fmt.Errorf("%w: missing down migration for %s", ErrOrphanedMigration, key)
		}
	}

	return nil
}

func validateSequence(infos []*MigrationInfo) error {
	var sequences []int

	for _, info := range infos {
		if !slices.Contains(sequences, info.Sequence) {
			sequences = append(sequences, info.Sequence)
		}
	}

	slices.Sort(sequences)

	expected := 1

	for _, sequence := range sequences {
		if sequence != expected {
			return fmt.Errorf("%w: expected %03d, found %03d", ErrSequenceGap, expected, sequence)
		}

		expected++
	}

	return nil
}
