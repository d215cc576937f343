// Package ftptools lists and fetches files from FTP servers, used for
// archives that are not reachable over HTTP.
package ftptools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

// Config holds the connection settings for one FTP server.
type Config struct {
	Host string
	Port int
	// Username defaults to anonymous.
	Username string
	Password string
	Timeout  time.Duration
}

func (c *Config) fillDefaults() {
	if c.Port == 0 {
		c.Port = 21
	}
	if c.Username == "" {
		c.Username = "anonymous"
		if c.Password == "" {
			c.Password = "anonymous"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func connect(ctx context.Context, cfg Config) (*ftp.ServerConn, error) {
	cfg.fillDefaults()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(cfg.Timeout))
	if err != nil {
		return nil, errors.Wrapf(err, "ftptools: connecting to %s failed", addr)
	}
	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		conn.Quit()
		return nil, errors.Wrapf(err, "ftptools: login to %s failed", addr)
	}
	return conn, nil
}

// ListDir returns the file names in a remote directory, recursing into
// subdirectories when recurse is set. Paths are relative to dir.
func ListDir(ctx context.Context, cfg Config, dir string, recurse bool) ([]string, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	var files []string
	var walk func(string) error
	walk = func(current string) error {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "ftptools: listing cancelled")
		default:
		}

		entries, err := conn.List(current)
		if err != nil {
			return errors.Wrapf(err, "ftptools: listing %s failed", current)
		}
		for _, e := range entries {
			switch e.Type {
			case ftp.EntryTypeFile:
				files = append(files, strings.TrimPrefix(path.Join(current, e.Name), dir+"/"))
			case ftp.EntryTypeFolder:
				if recurse && e.Name != "." && e.Name != ".." {
					if err := walk(path.Join(current, e.Name)); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	if err := walk(dir); err != nil {
		return nil, err
	}
	return files, nil
}

// DownloadFile fetches one remote file to outPath through a temporary
// side file, so partial transfers never masquerade as complete.
func DownloadFile(ctx context.Context, cfg Config, remotePath, outPath string) error {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Quit()

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return errors.Wrapf(err, "ftptools: retrieving %s failed", remotePath)
	}
	defer resp.Close()

	tmpPath := outPath + ".incomplete"
	defer os.Remove(tmpPath)

	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.NewFileIOError("DownloadFile", tmpPath, err)
	}
	written, err := io.Copy(out, resp)
	closeErr := out.Close()
	if err != nil {
		return errors.Wrapf(err, "ftptools: transfer of %s failed", remotePath)
	}
	if closeErr != nil {
		return errors.NewFileIOError("DownloadFile", tmpPath, closeErr)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return errors.NewFileIOError("DownloadFile", outPath, err)
	}

	log.GetLoggerWithName("ftptools.download").Info("FTP download complete",
		log.FileKey, outPath,
		log.BytesKey, written,
	)
	return nil
}
