package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/tools/httptools"
)

func downloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Bulk download tracked in a SQLite listings database",
	}
	cmd.AddCommand(downloadCreateDBCommand(), downloadRunCommand())
	return cmd
}

func downloadCreateDBCommand() *cobra.Command {
	var dbPath, urlsFile string

	cmd := &cobra.Command{
		Use:   "create-db",
		Short: "Record a batch of URLs to download",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, checksums, err := readURLsFile(urlsFile)
			if err != nil {
				return err
			}
			return httptools.CreateFileListingsDB(dbPath, urls, checksums)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Listings database file")
	cmd.Flags().StringVar(&urlsFile, "urls", "", "File with one URL per line, optionally followed by an MD5 checksum")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("urls")
	return cmd
}

func downloadRunCommand() *cobra.Command {
	var dbPath, outDir string
	var retries int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download every pending file of a listings database",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := httptools.DownloadOpts{Retries: retries}
			return httptools.DownloadFilesUseDB(cmd.Context(), dbPath, outDir,
				viper.GetInt("threads"), opts)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Listings database file")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory to download into")
	cmd.Flags().IntVar(&retries, "retries", httptools.DefaultRetries, "Attempts per file")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

// readURLsFile parses lines of "url [md5]".
func readURLsFile(path string) ([]string, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.NewFileIOError("readURLsFile", path, err)
	}
	defer f.Close()

	var urls []string
	checksums := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		urls = append(urls, fields[0])
		if len(fields) > 1 {
			checksums[fields[0]] = fields[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.NewFileIOError("readURLsFile", path, err)
	}
	if len(urls) == 0 {
		return nil, nil, errors.Newf("no URLs found in %s", path)
	}
	return urls, checksums, nil
}
