package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// sqliteSideSuffixes name the files SQLite keeps next to a database in WAL mode.
var sqliteSideSuffixes = []string{"-wal", "-shm"}

// DatabaseFiles lists the main SQLite database file followed by its WAL side files.
func DatabaseFiles(dbPath string) []string {
	files := []string{dbPath}
	for _, suffix := range sqliteSideSuffixes {
		files = append(files, dbPath+suffix)
	}
	return files
}

// DiskUsageBytes returns the bytes the SQLite database at dbPath occupies,
// counting the main file and whichever -wal and -shm files exist.
// A missing main file is an error wrapping fs.ErrNotExist.
func DiskUsageBytes(dbPath string) (int64, error) {
	if dbPath == "" {
		return 0, fmt.Errorf("database path is empty")
	}
	var total int64
	for i, p := range DatabaseFiles(dbPath) {
		info, err := os.Stat(p)
		if err != nil {
			if i > 0 && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return 0, fmt.Errorf("%s is not a regular file", p)
		}
		total += info.Size()
	}
	return total, nil
}
