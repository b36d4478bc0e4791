// Package fasta ingests FASTA files (plain, gzip, zip archives or stdin) into
// parsed records and writes curated FASTA back out.
package fasta

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"

	"virsift/pkg/domain"
)

// Stdin names standard input as a source path.
const Stdin = "-"

var fastaExtensions = []string{".fasta", ".fa", ".fas", ".fna", ".ffn", ".faa"}

// IsFASTAName reports whether name carries a FASTA extension, optionally
// followed by .gz.
func IsFASTAName(name string) bool {
	lower := strings.TrimSuffix(strings.ToLower(name), ".gz")
	for _, ext := range fastaExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FileResult is the outcome of reading one source. When Err is set the
// file contributed no records.
type FileResult struct {
	Path    string
	Records []domain.Record
	Report  domain.ParseReport
	Err     error
}

// Batch concatenates the successfully read sources in argument order.
type Batch struct {
	Files   []FileResult
	Records []domain.Record
	Report  domain.ParseReport
}

// Failed returns the sources that could not be read.
func (b Batch) Failed() []FileResult {
	var out []FileResult
	for _, f := range b.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Paths lists every source path in order.
func (b Batch) Paths() []string {
	out := make([]string, len(b.Files))
	for i, f := range b.Files {
		out[i] = f.Path
	}
	return out
}

// Reader parses FASTA sources with a header parser.
type Reader struct {
	parser *domain.HeaderParser
}

// NewReader returns a reader; a nil parser uses the default host table.
func NewReader(parser *domain.HeaderParser) *Reader {
	if parser == nil {
		parser = domain.NewHeaderParser(domain.DefaultHostTable())
	}
	return &Reader{parser: parser}
}

// ReadFiles reads every path. A failing file is reported in its result and
// the remaining files continue. Ordinals run across the whole batch.
func (r *Reader) ReadFiles(ctx context.Context, paths []string) (Batch, error) {
	var batch Batch
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res := r.ReadFile(path, len(batch.Records))
		batch.Files = append(batch.Files, res)
		if res.Err != nil {
			continue
		}
		batch.Records = append(batch.Records, res.Records...)
		batch.Report.Merge(res.Report)
	}
	return batch, nil
}

// ReadFile reads one source. Zip archives contribute each FASTA member in
// archive order; other paths (including "-") go through xopen, which
// decompresses transparently.
func (r *Reader) ReadFile(path string, start int) FileResult {
	res := FileResult{Path: path}
	if path != Stdin {
		info, err := os.Stat(path)
		if err != nil {
			res.Err = fmt.Errorf("%s: %w", path, err)
			return res
		}
		if info.Size() == 0 {
			return res
		}
	}
	var err error
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		err = r.readZip(path, start, &res)
	} else {
		var reader *fastx.Reader
		reader, err = fastx.NewReader(seq.Unlimit, path, fastx.DefaultIDRegexp)
		if err == nil {
			err = r.consume(reader, start, &res)
			reader.Close()
		}
	}
	if err != nil {
		res.Records = nil
		res.Report = domain.ParseReport{}
		res.Err = fmt.Errorf("%s: %w", path, err)
	}
	return res
}

// Read parses FASTA text from rd.
func (r *Reader) Read(name string, rd io.Reader, start int) FileResult {
	res := FileResult{Path: name}
	reader, err := fastx.NewReaderFromIO(seq.Unlimit, rd, fastx.DefaultIDRegexp)
	if err == nil {
		err = r.consume(reader, start, &res)
	}
	if err != nil {
		res.Records = nil
		res.Report = domain.ParseReport{}
		res.Err = fmt.Errorf("%s: %w", name, err)
	}
	return res
}

func (r *Reader) readZip(path string, start int, res *FileResult) error {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer archive.Close()
	for _, member := range archive.File {
		if member.FileInfo().IsDir() || !IsFASTAName(member.Name) {
			continue
		}
		if err := r.readMember(member, start+len(res.Records), res); err != nil {
			return fmt.Errorf("%s: %w", member.Name, err)
		}
	}
	return nil
}

func (r *Reader) readMember(member *zip.File, start int, res *FileResult) error {
	if member.UncompressedSize64 == 0 {
		return nil
	}
	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	var src io.Reader = rc
	if strings.HasSuffix(strings.ToLower(member.Name), ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return err
		}
		defer gz.Close()
		src = gz
	}
	reader, err := fastx.NewReaderFromIO(seq.Unlimit, src, fastx.DefaultIDRegexp)
	if err != nil {
		return err
	}
	return r.consume(reader, start, res)
}

func (r *Reader) consume(reader *fastx.Reader, start int, res *FileResult) error {
	for n := 0; ; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		rec, issues, err := r.parser.Record(start+len(res.Records), string(record.Name), string(record.Seq.Seq))
		if err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
		res.Records = append(res.Records, rec)
		res.Report.Add(issues)
	}
}
