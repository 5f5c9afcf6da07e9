package database

import (
	"database/sql"
	"fmt"
	"time"

	"featurestore/logging"
	"featurestore/types"

	_ "github.com/mattn/go-sqlite3"
)

// InitDatabase opens the catalog at dbPath, creating or upgrading its schema
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		directory TEXT NOT NULL,
		name TEXT NOT NULL,
		lon REAL NOT NULL DEFAULT 0,
		lat REAL NOT NULL DEFAULT 0,
		msl REAL NOT NULL DEFAULT 0,
		roll REAL NOT NULL DEFAULT 0,
		pitch REAL NOT NULL DEFAULT 0,
		yaw REAL NOT NULL DEFAULT 0,
		yaw_bias REAL NOT NULL DEFAULT 0,
		roll_bias REAL NOT NULL DEFAULT 0,
		pitch_bias REAL NOT NULL DEFAULT 0,
		alt_bias REAL NOT NULL DEFAULT 0,
		keypoints INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT,
		UNIQUE(directory, name)
	);
	CREATE INDEX IF NOT EXISTS idx_directory ON images(directory);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}

	// Catalogs written before match bookkeeping lack these columns
	for _, column := range []string{"descriptors", "match_pairs"} {
		if err := ensureIntColumn(db, column); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func ensureIntColumn(db *sql.DB, column string) error {
	var hasColumn bool
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('images') WHERE name=?", column).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("error checking for %s column: %v", column, err)
	}
	if hasColumn {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE images ADD COLUMN %s INTEGER NOT NULL DEFAULT 0;", column)); err != nil {
		return fmt.Errorf("error adding %s column: %v", column, err)
	}
	logging.DebugLog("Added '%s' column to existing catalog schema", column)
	return nil
}

// OpenDatabase opens an existing catalog
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath)
}

// StoreImage inserts or replaces the catalog row for info.Directory/info.Name
func StoreImage(db *sql.DB, info types.ImageInfo) error {
	now := time.Now().Format(time.RFC3339)

	stmt, err := db.Prepare(`
		INSERT INTO images (
			directory, name, lon, lat, msl, roll, pitch, yaw,
			yaw_bias, roll_bias, pitch_bias, alt_bias,
			keypoints, descriptors, match_pairs, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(directory, name) DO UPDATE SET
			lon = excluded.lon, lat = excluded.lat, msl = excluded.msl,
			roll = excluded.roll, pitch = excluded.pitch, yaw = excluded.yaw,
			yaw_bias = excluded.yaw_bias, roll_bias = excluded.roll_bias,
			pitch_bias = excluded.pitch_bias, alt_bias = excluded.alt_bias,
			keypoints = excluded.keypoints, descriptors = excluded.descriptors,
			match_pairs = excluded.match_pairs, updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %v", info.Name, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		info.Directory, info.Name,
		info.Pose.Lon, info.Pose.Lat, info.Pose.MSL,
		info.Pose.Roll, info.Pose.Pitch, info.Pose.Yaw,
		info.Bias.Yaw, info.Bias.Roll, info.Bias.Pitch, info.Bias.Alt,
		info.Keypoints, info.Descriptors, info.MatchPairs, now,
	)
	if err != nil {
		return fmt.Errorf("cannot store catalog row for %s: %v", info.Name, err)
	}
	return nil
}

const selectColumns = `id, directory, name, lon, lat, msl, roll, pitch, yaw,
	yaw_bias, roll_bias, pitch_bias, alt_bias,
	keypoints, descriptors, match_pairs, COALESCE(updated_at, '')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(row rowScanner) (types.ImageInfo, error) {
	var info types.ImageInfo
	err := row.Scan(
		&info.ID, &info.Directory, &info.Name,
		&info.Pose.Lon, &info.Pose.Lat, &info.Pose.MSL,
		&info.Pose.Roll, &info.Pose.Pitch, &info.Pose.Yaw,
		&info.Bias.Yaw, &info.Bias.Roll, &info.Bias.Pitch, &info.Bias.Alt,
		&info.Keypoints, &info.Descriptors, &info.MatchPairs, &info.UpdatedAt,
	)
	return info, err
}

// LoadImage returns the catalog row for directory/name. The bool is false
// when the image was never stored.
func LoadImage(db *sql.DB, directory, name string) (types.ImageInfo, bool, error) {
	row := db.QueryRow("SELECT "+selectColumns+" FROM images WHERE directory = ? AND name = ?", directory, name)
	info, err := scanImage(row)
	if err == sql.ErrNoRows {
		return types.ImageInfo{}, false, nil
	}
	if err != nil {
		return types.ImageInfo{}, false, fmt.Errorf("database error for %s: %v", name, err)
	}
	return info, true, nil
}

// ListImages returns the rows of one directory ordered by name, or every
// row when directory is empty
func ListImages(db *sql.DB, directory string) ([]types.ImageInfo, error) {
	query := "SELECT " + selectColumns + " FROM images"
	var args []interface{}
	if directory != "" {
		query += " WHERE directory = ?"
		args = append(args, directory)
	}
	query += " ORDER BY directory, name"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %v", err)
	}
	defer rows.Close()

	var images []types.ImageInfo
	for rows.Next() {
		info, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %v", err)
		}
		images = append(images, info)
	}
	return images, rows.Err()
}

// CatalogStats summarizes the catalog contents
type CatalogStats struct {
	TotalImages    int
	GeotaggedCount int
	TotalKeypoints int
	TotalPairs     int
}

// GetCatalogStats retrieves statistics about cataloged images
func GetCatalogStats(db *sql.DB, directory string) (*CatalogStats, error) {
	var stats CatalogStats

	query := `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN lon != 0 OR lat != 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(keypoints), 0),
		COALESCE(SUM(match_pairs), 0)
		FROM images`
	var args []interface{}
	if directory != "" {
		query += " WHERE directory = ?"
		args = append(args, directory)
	}

	err := db.QueryRow(query, args...).Scan(&stats.TotalImages, &stats.GeotaggedCount, &stats.TotalKeypoints, &stats.TotalPairs)
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog stats: %v", err)
	}
	return &stats, nil
}
