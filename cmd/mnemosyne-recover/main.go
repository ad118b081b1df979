// Command mnemosyne-recover restores the original content of an archived
// memory from its cold-storage record.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/scrypster/mnemosyne/internal/config"
	"github.com/scrypster/mnemosyne/internal/connections"
	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

const opTimeout = 30 * time.Second

var (
	hash        = flag.String("hash", "", "Hash of the archived memory (or of the archive record itself)")
	out         = flag.String("out", "", "Write recovered content to this file instead of stdout")
	verify      = flag.Bool("verify", false, "Recover and report against the archive summary without writing content")
	backendName = flag.String("backend", "", "Storage backend: sqlite, postgres, badger (overrides config)")
	dsn         = flag.String("db", "", "Backend DSN: file path, directory, or connection string (overrides config)")
)

func main() {
	flag.Parse()

	if *hash == "" {
		log.Fatal("-hash is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *backendName != "" {
		cfg.Storage.Backend = *backendName
	}
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}

	store, err := connections.Open(cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	arch, content, err := resolveAndRecover(ctx, store, *hash)
	if err != nil {
		log.Fatalf("Recovery failed: %v", err)
	}

	if *verify {
		printVerification(arch, content)
		return
	}

	if *out == "" {
		fmt.Print(content)
		return
	}
	if err := os.WriteFile(*out, []byte(content), 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	log.Printf("Recovered %d bytes to %s", len(content), *out)
}

// resolveAndRecover accepts either an original memory's hash or an archive
// record's, follows the archive ref when needed, and decompresses the
// payload back to the exact original content.
func resolveAndRecover(ctx context.Context, store storage.Store, hash string) (*types.ArchiveRecord, string, error) {
	m, err := store.GetByHash(ctx, hash)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", hash, err)
	}

	if m.Type != types.TypeArchive {
		if !m.Archived || m.ArchiveRef == "" {
			return nil, "", fmt.Errorf("memory %s is not archived; its content is still live", m.Hash)
		}
		ref := m.ArchiveRef
		if m, err = store.GetByHash(ctx, ref); err != nil {
			return nil, "", fmt.Errorf("fetch archive record %s: %w", ref, err)
		}
	}

	arch, err := types.ArchiveFromRecord(m)
	if err != nil {
		return nil, "", err
	}
	content, err := arch.Recover()
	if err != nil {
		return nil, "", err
	}
	return arch, content, nil
}

func printVerification(arch *types.ArchiveRecord, content string) {
	fmt.Printf("Original Hash: %s\n", arch.OriginalHash)
	fmt.Printf("Reason:        %s\n", arch.Reason)
	fmt.Printf("Horizon:       %s\n", arch.Horizon)
	if !arch.ArchivedAt.IsZero() {
		fmt.Printf("Archived At:   %s\n", arch.ArchivedAt.Format(time.RFC3339))
	}
	fmt.Printf("Payload:       %d bytes compressed, %d recovered\n", len(arch.Payload), len(content))
	if arch.Summary != nil && len(arch.Summary.Keywords) > 0 {
		terms := make([]string, 0, len(arch.Summary.Keywords))
		for _, kw := range arch.Summary.Keywords {
			terms = append(terms, kw.Term)
		}
		fmt.Printf("Keywords:      %s\n", strings.Join(terms, ", "))
	}
	fmt.Println("Payload recovered cleanly")
}
