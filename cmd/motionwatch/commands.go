package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bdougie/motionwatch/internal/models"
	"github.com/bdougie/motionwatch/internal/monitor"
	"github.com/bdougie/motionwatch/internal/player"
	"github.com/bdougie/motionwatch/internal/storage"
)

// console wires the interactive commands to the running pipeline.
type console struct {
	player    *player.Player
	session   *monitor.Session
	outputDir string
	out       io.Writer
	logger    *slog.Logger
}

func printAlert(w io.Writer, f models.Finding) {
	fmt.Fprintf(w, "ALERT [%s] - %s\n", f.Timestamp, f.Analysis)
}

// export writes the finding log to the output directory. An empty log is
// reported, not treated as a failure.
func (c *console) export() error {
	path, err := c.session.Log().WriteExport(c.outputDir)
	if errors.Is(err, storage.ErrEmptyExport) {
		c.logger.Info("No alerts to export")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Exported %d alerts to %s\n", c.session.Log().Len(), path)
	return nil
}

func (c *console) status() {
	state := "paused"
	if c.player.Playing() {
		state = "playing"
	}
	fmt.Fprintf(c.out, "%s %s at %s, %d alerts, %d analyses pending\n",
		c.player.Media(), state, models.FormatTimestamp(c.player.Position()),
		c.session.Log().Len(), c.session.Pending())
	for _, f := range c.session.Log().Latest(5) {
		fmt.Fprintf(c.out, "  %s\n", f.Line())
	}
}

// handle runs one command line. It reports false when the user asked to quit.
func (c *console) handle(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
	case "play":
		c.player.Play()
	case "pause":
		c.player.Pause()
	case "clear":
		c.session.Clear()
		fmt.Fprintln(c.out, "Alerts cleared")
	case "export":
		if err := c.export(); err != nil {
			c.logger.Error("export failed", "error", err)
		}
	case "status":
		c.status()
	case "quit", "exit":
		return false
	default:
		fmt.Fprintln(c.out, "commands: play, pause, clear, export, status, quit")
	}
	return true
}

// run reads commands from r until EOF, quit, or ctx is done.
func (c *console) run(ctx context.Context, r io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !c.handle(line) {
				return
			}
		}
	}
}
