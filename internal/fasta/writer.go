package fasta

import (
	"bufio"
	"fmt"
	"io"

	"github.com/shenwei356/xopen"

	"virsift/pkg/domain"
)

// Write emits records as unwrapped two-line FASTA using each record's
// original header.
func Write(w io.Writer, records []domain.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(">" + r.Header + "\n" + r.Sequence + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes records to path. A ".gz" suffix compresses the output and
// "-" writes to stdout.
func WriteFile(path string, records []domain.Record) (retErr error) {
	out, err := xopen.Wopen(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := Write(out, records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
