// Package filereader tails OTLP trace files written by the OpenTelemetry
// Collector's file exporter and feeds the spans to a SpanReceiver, the same
// one the gRPC receiver uses.
package filereader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"google.golang.org/protobuf/encoding/protojson"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// maxLine bounds a single JSONL record. Batched spans with many attributes
// can be large.
const maxLine = 10 * 1024 * 1024

// tracesDir is the subdirectory the file exporter writes traces into.
const tracesDir = "traces"

// SpanReceiver stores decoded spans.
type SpanReceiver interface {
	ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error
}

// Config holds configuration for a FileSource.
type Config struct {
	Directory string // Base directory containing traces/*.jsonl
	Verbose   bool

	// ActiveOnly only loads traces.jsonl, skipping rotated archives like
	// traces-2025-12-09T13-10-56.jsonl.
	ActiveOnly bool

	// OnReceive, if set, is called with the number of spans read from each
	// batch of lines.
	OnReceive func(spans int)
}

// FileSource reads OTLP trace JSONL files and keeps following them.
type FileSource struct {
	cfg      Config
	dir      string
	receiver SpanReceiver

	mu      sync.Mutex
	offsets map[string]int64
}

// New creates a FileSource over cfg.Directory.
func New(cfg Config, receiver SpanReceiver) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if receiver == nil {
		return nil, fmt.Errorf("span receiver cannot be nil")
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	return &FileSource{
		cfg:      cfg,
		dir:      filepath.Join(cfg.Directory, tracesDir),
		receiver: receiver,
		offsets:  make(map[string]int64),
	}, nil
}

// Directory returns the base directory being read.
func (fs *FileSource) Directory() string {
	return fs.cfg.Directory
}

// Run loads the existing trace files, then follows new writes until ctx is
// cancelled. A missing traces/ directory is created so the exporter and the
// watcher agree on where to meet.
func (fs *FileSource) Run(ctx context.Context) error {
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", fs.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(fs.dir); err != nil {
		return fmt.Errorf("watch %s: %w", fs.dir, err)
	}
	if fs.cfg.Verbose {
		log.Printf("📁 FileSource: watching %s\n", fs.dir)
	}

	if err := fs.LoadExisting(ctx); err != nil {
		return fmt.Errorf("initial data load failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !fs.wanted(filepath.Base(event.Name)) {
				continue
			}
			count, err := fs.readFile(ctx, event.Name)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("⚠️  FileSource: error reading %s: %v\n", event.Name, err)
			} else if fs.cfg.Verbose && count > 0 {
				log.Printf("📁 FileSource: loaded %d new spans from %s\n", count, filepath.Base(event.Name))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("⚠️  FileSource: watcher error: %v\n", err)
		}
	}
}

// LoadExisting reads every matching trace file once, oldest first.
func (fs *FileSource) LoadExisting(ctx context.Context) error {
	files, err := fs.findFiles()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, file := range files {
		count, err := fs.readFile(ctx, file)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("⚠️  FileSource: error loading %s: %v\n", file, err)
			continue
		}
		if fs.cfg.Verbose && count > 0 {
			log.Printf("📁 FileSource: loaded %d spans from %s\n", count, filepath.Base(file))
		}
	}
	return nil
}

// wanted reports whether a file name is a trace file this source reads.
func (fs *FileSource) wanted(name string) bool {
	if fs.cfg.ActiveOnly {
		return name == tracesDir+".jsonl"
	}
	return strings.HasSuffix(name, ".jsonl")
}

// findFiles returns the trace files in modification order, oldest first.
func (fs *FileSource) findFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path string
		mod  int64
	}
	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() || !fs.wanted(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(fs.dir, entry.Name()), mod: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// readFile reads complete lines past the last offset and returns how many
// spans they held. A trailing line without a newline is left for the next
// read, since the exporter may still be writing it. A file that shrank is
// assumed rotated and read from the start.
func (fs *FileSource) readFile(ctx context.Context, path string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	offset := fs.offsets[path]
	if info, err := file.Stat(); err == nil && info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	spans := 0
	for {
		if err := ctx.Err(); err != nil {
			fs.offsets[path] = offset
			return spans, err
		}

		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			break // incomplete or no trailing line
		}
		if err != nil {
			fs.offsets[path] = offset
			return spans, fmt.Errorf("reading %s: %w", path, err)
		}
		offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if len(line) > maxLine {
			log.Printf("⚠️  FileSource: skipping %d-byte line in %s\n", len(line), filepath.Base(path))
			continue
		}

		n, err := fs.decodeLine(ctx, line)
		if err != nil {
			// Log but continue - don't let one bad line stop everything
			if fs.cfg.Verbose {
				log.Printf("⚠️  FileSource: error processing line in %s: %v\n", filepath.Base(path), err)
			}
			continue
		}
		spans += n
	}

	fs.offsets[path] = offset
	if spans > 0 && fs.cfg.OnReceive != nil {
		fs.cfg.OnReceive(spans)
	}
	return spans, nil
}

func (fs *FileSource) decodeLine(ctx context.Context, line []byte) (int, error) {
	var data tracepb.TracesData
	if err := protojson.Unmarshal(line, &data); err != nil {
		return 0, fmt.Errorf("parse trace JSON: %w", err)
	}
	if len(data.GetResourceSpans()) == 0 {
		return 0, nil
	}
	fixHexIDs(data.GetResourceSpans())
	if err := fs.receiver.ReceiveSpans(ctx, data.GetResourceSpans()); err != nil {
		return 0, err
	}

	n := 0
	for _, rs := range data.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			n += len(ss.GetSpans())
		}
	}
	return n, nil
}

// fixHexIDs undoes protojson's base64 reading of ids. OTLP/JSON encodes
// trace and span ids as hex, which protojson accepts as base64 and decodes to
// the wrong bytes. Re-encoding recovers the original text.
func fixHexIDs(resourceSpans []*tracepb.ResourceSpans) {
	for _, rs := range resourceSpans {
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				span.TraceId = hexID(span.TraceId, 16)
				span.SpanId = hexID(span.SpanId, 8)
				span.ParentSpanId = hexID(span.ParentSpanId, 8)
				for _, link := range span.GetLinks() {
					link.TraceId = hexID(link.TraceId, 16)
					link.SpanId = hexID(link.SpanId, 8)
				}
			}
		}
	}
}

func hexID(id []byte, size int) []byte {
	if len(id) == size || len(id) == 0 {
		return id
	}
	text := base64.StdEncoding.EncodeToString(id)
	if len(text) != size*2 {
		return id
	}
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return id
	}
	return decoded
}

// Stats describes what the source has read.
type Stats struct {
	Directory    string `json:"directory"`
	FilesTracked int    `json:"files_tracked"`
	BytesRead    int64  `json:"bytes_read"`
}

// Stats returns current statistics.
func (fs *FileSource) Stats() Stats {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	st := Stats{Directory: fs.cfg.Directory, FilesTracked: len(fs.offsets)}
	for _, off := range fs.offsets {
		st.BytesRead += off
	}
	return st
}
