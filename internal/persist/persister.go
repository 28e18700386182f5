package persist

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/Pahihq/ctfd-parser/internal/extract"
	"github.com/Pahihq/ctfd-parser/internal/model"
	"github.com/Pahihq/ctfd-parser/internal/transport"
)

// File and directory names inside a challenge directory.
const (
	DescriptionFile = "description.txt"
	PageFile        = "page.html"
	FilesDir        = "files"
)

// Downloader fetches attachments. *transport.Client satisfies it.
type Downloader interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
}

// Persister writes extractions below an output root.
type Persister struct {
	root       string
	downloader Downloader
	logger     *slog.Logger

	saveHTML        bool
	saveDescription bool
	saveFiles       bool
}

// Option configures a Persister.
type Option func(*Persister)

// SaveHTML controls whether page.html is written. Off by default.
func SaveHTML(enabled bool) Option {
	return func(p *Persister) {
		p.saveHTML = enabled
	}
}

// SaveDescription controls whether description.txt is written. On by default.
func SaveDescription(enabled bool) Option {
	return func(p *Persister) {
		p.saveDescription = enabled
	}
}

// SaveFiles controls whether attachments are downloaded. On by default.
func SaveFiles(enabled bool) Option {
	return func(p *Persister) {
		p.saveFiles = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persister) {
		p.logger = logger
	}
}

// New creates a Persister writing below root.
func New(root string, downloader Downloader, opts ...Option) *Persister {
	p := &Persister{
		root:            root,
		downloader:      downloader,
		logger:          slog.Default(),
		saveDescription: true,
		saveFiles:       true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the directory an extraction is written to.
func (p *Persister) Dir(rec model.ChallengeRecord) string {
	name := model.SafeName(rec.Title, model.DefaultTitle)
	if rec.Category == "" {
		return filepath.Join(p.root, name)
	}
	return filepath.Join(p.root, model.SafeName(rec.Category, model.DefaultCategory), name)
}

// Persist writes one extraction and downloads its attachments sequentially.
// The first failing download or write aborts; files written before it stay on disk.
func (p *Persister) Persist(ctx context.Context, ex *model.Extraction) (*model.Outcome, error) {
	rec := ex.Record
	dir, err := filepath.Abs(p.Dir(rec))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	p.warnOnCollision(dir, rec.Source)

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if p.saveHTML {
		if err := writeFile(filepath.Join(dir, PageFile), ex.Page); err != nil {
			return nil, err
		}
	}
	if p.saveDescription {
		if err := writeFile(filepath.Join(dir, DescriptionFile), Description(rec)); err != nil {
			return nil, err
		}
	}

	out := &model.Outcome{Record: rec, Dir: dir}
	if !p.saveFiles || len(rec.Attachments) == 0 {
		return out, nil
	}

	filesDir := filepath.Join(dir, FilesDir)
	if err := os.MkdirAll(filesDir, 0750); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	for _, a := range rec.Attachments {
		p.logger.Info("downloading attachment", "url", a.URL, "file", a.Filename)

		resp, err := p.downloader.Get(ctx, a.URL)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrDownload, a.Filename, err)
		}
		path := filepath.Join(filesDir, a.Filename)
		if err := writeFile(path, resp.Body); err != nil {
			return nil, err
		}

		sum := sha3.Sum256(resp.Body)
		out.Files = append(out.Files, model.SavedFile{
			Name:   a.Filename,
			Path:   path,
			Size:   int64(len(resp.Body)),
			Digest: hex.EncodeToString(sum[:]),
		})
		out.SavedFiles++
	}
	return out, nil
}

// Description renders the description.txt content of a record.
func Description(rec model.ChallengeRecord) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "URL: %s\n", rec.Source)
	if rec.ID != nil {
		fmt.Fprintf(&b, "Challenge ID: %d\n", *rec.ID)
	}
	fmt.Fprintf(&b, "Title: %s\n", rec.DisplayName())
	if rec.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", rec.Category)
	}
	if rec.Points != nil {
		fmt.Fprintf(&b, "Points: %d\n", *rec.Points)
	}
	b.WriteString("\n")
	if rec.Description != "" {
		b.WriteString(rec.Description)
	} else {
		b.WriteString(extract.NoDescription)
	}
	return b.Bytes()
}

// warnOnCollision logs when dir already holds a different challenge.
func (p *Persister) warnOnCollision(dir, source string) {
	f, err := os.Open(filepath.Join(dir, DescriptionFile)) //nolint:gosec // path is built from sanitized names
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return
	}
	existing, ok := strings.CutPrefix(sc.Text(), "URL: ")
	if ok && existing != source {
		p.logger.Warn("challenge directory already holds another challenge, overwriting",
			"dir", dir,
			"existing", existing,
			"source", source,
		)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}
