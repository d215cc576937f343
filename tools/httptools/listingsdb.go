package httptools

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dotysan/rsgislib/core/parallel"
	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

// FileListing is one tracked download. Downloaded stays false until
// the file is on disk and verified, so re-running a batch only fetches
// what is missing.
type FileListing struct {
	ID         string `gorm:"primaryKey"`
	URL        string `gorm:"uniqueIndex;not null"`
	Filename   string `gorm:"not null"`
	MD5        string
	Downloaded bool
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func openListingsDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.NewFileIOError("openListingsDB", dbPath, err)
	}
	if err := db.AutoMigrate(&FileListing{}); err != nil {
		return nil, errors.Wrap(err, "httptools: listings schema migration failed")
	}
	return db, nil
}

// CreateFileListingsDB records a batch of URLs to download. Known URLs
// are left untouched so the call is idempotent. Checksums, keyed by
// URL, may be nil.
func CreateFileListingsDB(dbPath string, urls []string, checksums map[string]string) error {
	if len(urls) == 0 {
		return errors.NewValueError("CreateFileListingsDB", "no URLs given")
	}
	db, err := openListingsDB(dbPath)
	if err != nil {
		return err
	}

	for _, url := range urls {
		listing := FileListing{
			ID:       uuid.NewString(),
			URL:      url,
			Filename: path.Base(url),
			MD5:      checksums[url],
		}
		result := db.Where(FileListing{URL: url}).FirstOrCreate(&listing)
		if result.Error != nil {
			return errors.Wrapf(result.Error, "httptools: recording %s failed", url)
		}
	}
	return nil
}

// DownloadFilesUseDB downloads every pending file of a listings
// database into outDir with the given worker count, marking each one
// downloaded as it completes. Files already marked are skipped.
func DownloadFilesUseDB(ctx context.Context, dbPath, outDir string, workers int, opts DownloadOpts) error {
	db, err := openListingsDB(dbPath)
	if err != nil {
		return err
	}
	logger := log.GetLoggerWithName("httptools.batch")

	var pending []FileListing
	if err := db.Where("downloaded = ?", false).Find(&pending).Error; err != nil {
		return errors.Wrap(err, "httptools: listing query failed")
	}
	if len(pending) == 0 {
		logger.Info("No pending downloads", log.FileKey, dbPath)
		return nil
	}
	logger.Info("Starting batch download",
		"pending", len(pending),
		log.ThreadsKey, workers,
	)

	failures := make([]error, len(pending))
	parallel.ParallelizeWithWorkers(len(pending), workers, func(start, end int) {
		for i := start; i < end; i++ {
			listing := pending[i]
			outPath := path.Join(outDir, listing.Filename)

			itemOpts := opts
			itemOpts.MD5 = listing.MD5
			if err := DownloadFile(ctx, listing.URL, outPath, itemOpts); err != nil {
				failures[i] = err
				db.Model(&FileListing{}).Where("id = ?", listing.ID).
					Update("attempts", gorm.Expr("attempts + 1"))
				continue
			}
			db.Model(&FileListing{}).Where("id = ?", listing.ID).
				Updates(map[string]any{"downloaded": true, "attempts": gorm.Expr("attempts + 1")})
		}
	})

	var failed int
	var firstErr error
	for _, err := range failures {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed > 0 {
		return errors.Wrapf(firstErr, "httptools: %d of %d downloads failed", failed, len(pending))
	}
	return nil
}
