package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"featurestream/internal/config"
	"featurestream/internal/model"
)

// StartReplay streams JSONL event dumps into the engine. With follow enabled
// it keeps tailing the file for appended events, reopening on truncation.
func StartReplay(ctx context.Context, cfg *config.Manager, out chan<- model.RawEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.Replay
	if !current.Enabled {
		if logger != nil {
			logger.Info("replay ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		path := path
		if logger != nil {
			logger.Info("replay ingest enabled", "path", path, "follow", current.Follow)
		}
		go replayFile(ctx, path, current.Follow, out, logger)
	}
}

func replayFile(ctx context.Context, path string, follow bool, out chan<- model.RawEvent, logger *slog.Logger) {
	var file *os.File
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("replay open failed", "path", path, "err", err)
				}
				if !follow || !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
		}

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if line != "" {
						offset += int64(len(line))
						replayLine(ctx, line, out, logger)
					}
					if !follow {
						_ = file.Close()
						return
					}
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						_ = file.Close()
						file = nil
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("replay read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			offset += int64(len(line))
			replayLine(ctx, line, out, logger)
		}
		if file == nil && !follow {
			return
		}
	}
}

func replayLine(ctx context.Context, line string, out chan<- model.RawEvent, logger *slog.Logger) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	raw, err := DecodeEvent([]byte(line))
	if err != nil {
		if logger != nil {
			logger.Warn("replay decode error", "err", err)
		}
		return
	}
	SendNonBlocking(ctx, out, raw, "replay", logger)
}
