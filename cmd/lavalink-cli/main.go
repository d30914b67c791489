// cmd/lavalink-cli/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/keshon/lavalink/internal/config"
	"github.com/keshon/lavalink/internal/lavalink"
	applog "github.com/keshon/lavalink/internal/log"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, lavalink.ErrNoMatch) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run resolves one query against the node and prints the tracks it found.
func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("lavalink-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	host := fs.String("host", cfg.Host, "node host")
	port := fs.Int("port", cfg.Port, "node port")
	password := fs.String("password", cfg.Password, "node password")
	prefix := fs.String("prefix", cfg.SearchPrefix, "search prefix for plain terms")
	timeout := fs.Duration("timeout", cfg.SearchTimeout, "search timeout")
	limit := fs.Int("n", 5, "number of tracks to print, 0 for all")
	asJSON := fs.Bool("json", false, "print the raw tracks as JSON")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fs.Usage()
		return errors.New("missing query")
	}
	if !strings.Contains(query, "://") && !strings.Contains(query, "search:") {
		query = *prefix + query
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := applog.New(applog.Config{Level: level, Console: true, Output: stderr, Service: "lavalink-cli"})

	resolver := lavalink.NewResolver(lavalink.ResolverConfig{
		BaseURL:  fmt.Sprintf("http://%s:%d", *host, *port),
		Password: *password,
		Timeout:  *timeout,
		Logger:   logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()
	res, err := resolver.Search(ctx, query)
	if err != nil {
		return err
	}

	tracks := res.Tracks
	if *limit > 0 && len(tracks) > *limit {
		tracks = tracks[:*limit]
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tracks)
	}
	return printTracks(stdout, res.LoadType, tracks)
}

func printTracks(w io.Writer, loadType string, tracks []lavalink.Track) error {
	if _, err := fmt.Fprintf(w, "%s, %d track(s)\n", loadType, len(tracks)); err != nil {
		return err
	}
	for i, t := range tracks {
		length := "live"
		if !t.Info.IsStream {
			length = (time.Duration(t.Info.Length) * time.Millisecond).Round(time.Second).String()
		}
		if _, err := fmt.Fprintf(w, "%2d. %s - %s (%s)\n    %s\n", i+1, t.Info.Author, t.Info.Title, length, t.Info.URI); err != nil {
			return err
		}
	}
	return nil
}
