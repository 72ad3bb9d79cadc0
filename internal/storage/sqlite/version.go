package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// BinaryVersion is the bd release that writes databases opened by this package.
const BinaryVersion = "0.9.0"

// versionMetadataKey stores the newest bd version that opened the database.
const versionMetadataKey = "bd_version"

// normalizeVersion adds the "v" prefix semver expects.
func normalizeVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

// checkVersionCompatibility refuses databases last written by a newer major
// release, then records BinaryVersion when it is newer than the stored one.
func checkVersionCompatibility(ctx context.Context, db *sql.DB, binaryVersion string) error {
	var stored string
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, versionMetadataKey).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read %s: %w", versionMetadataKey, err)
	}

	dbVer := normalizeVersion(stored)
	binVer := normalizeVersion(binaryVersion)

	// Dev builds and fresh databases are always accepted.
	if stored != "" && semver.IsValid(dbVer) && semver.IsValid(binVer) {
		if semver.Major(dbVer) != semver.Major(binVer) && semver.Compare(dbVer, binVer) > 0 {
			return fmt.Errorf("%w: database written by bd %s, this is bd %s; upgrade bd",
				ErrSchemaIncompatible, stored, binaryVersion)
		}
		if semver.Compare(dbVer, binVer) >= 0 {
			return nil
		}
	}

	if !semver.IsValid(binVer) {
		return nil
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, versionMetadataKey, binaryVersion)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", versionMetadataKey, err)
	}
	return nil
}
