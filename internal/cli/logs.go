package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
)

const logFollowInterval = 250 * time.Millisecond

var (
	logsLines  int
	logsFollow bool
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of trailing lines to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep printing new log output")
}

var logsCmd = &cobra.Command{
	Use:   "logs [node]",
	Short: "Show a node's daemon log",
	Long: `Show the tail of a node's daemon log file.

With --follow the log is streamed until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		node, err := resolveNodeByRef(ctx, nodeRepo, nodeRefFromArgs(args))
		if err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg)
		logPath := sup.LogPath(node)
		if !exists(logPath) {
			return &PreflightError{
				Message:  fmt.Sprintf("no log file for node %q yet", node.Name),
				Hint:     "the daemon writes its log on first start",
				NextStep: fmt.Sprintf("berth up %s", node.Name),
			}
		}

		if tail := daemon.TailLog(logPath, logsLines); tail != "" {
			fmt.Fprintln(os.Stdout, tail)
		}

		if !logsFollow {
			return nil
		}

		return followLogFile(ctx, logPath, os.Stdout)
	},
}

// followLogFile streams appended log data until the context ends.
// Truncation or rotation restarts from the top of the new file.
func followLogFile(ctx context.Context, path string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { file.Close() }()

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(logFollowInterval)
	defer ticker.Stop()

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				// Rotated away; wait for the file to come back.
				continue
			}
			if info.Size() < offset {
				reopened, rerr := os.Open(path)
				if rerr != nil {
					continue
				}
				file.Close()
				file = reopened
				offset = 0
			}

			for {
				n, readErr := file.Read(buf)
				if n > 0 {
					offset += int64(n)
					if _, werr := out.Write(buf[:n]); werr != nil {
						return werr
					}
				}
				if readErr != nil {
					break
				}
			}
		}
	}
}
