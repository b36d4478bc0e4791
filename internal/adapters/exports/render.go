// Package exports renders curated sessions into downloadable artifacts and
// publishes them to a blob store through an asynchronous worker.
package exports

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maruel/natural"

	"virsift/internal/core"
	"virsift/internal/fasta"
	"virsift/pkg/domain"
)

// Format names an artifact kind.
type Format string

const (
	FormatFASTA       Format = "fasta"
	FormatMetadataCSV Format = "metadata_csv"
	FormatClusterCSV  Format = "cluster_csv"
	FormatMatrixCSV   Format = "matrix_csv"
	FormatMethodology Format = "methodology_json"
	FormatAccessions  Format = "accessions"
	FormatSplitZip    Format = "split_zip"
	FormatActionLog   Format = "action_log_json"
)

var allFormats = []Format{
	FormatFASTA, FormatMetadataCSV, FormatClusterCSV, FormatMatrixCSV,
	FormatMethodology, FormatAccessions, FormatSplitZip, FormatActionLog,
}

// ParseFormat resolves a format name.
func ParseFormat(s string) (Format, error) {
	name := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range allFormats {
		if f == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// NeedsTimeline reports whether f renders timeline output.
func (f Format) NeedsTimeline() bool {
	return f == FormatClusterCSV || f == FormatMatrixCSV || f == FormatMethodology
}

// Rendered is an artifact body ready to be stored.
type Rendered struct {
	Name        string
	Format      Format
	ContentType string
	Records     int
	Body        []byte
}

// SHA256 returns the hex digest of the body.
func (r Rendered) SHA256() string {
	sum := sha256.Sum256(r.Body)
	return hex.EncodeToString(sum[:])
}

// RenderFASTA writes the dataset with original headers and unwrapped sequences.
func RenderFASTA(name string, ds core.Dataset) (Rendered, error) {
	var buf bytes.Buffer
	if err := fasta.Write(&buf, ds.Records()); err != nil {
		return Rendered{}, err
	}
	return Rendered{Name: name, Format: FormatFASTA, ContentType: "text/x-fasta", Records: ds.Len(), Body: buf.Bytes()}, nil
}

var metadataHeader = []string{
	"ordinal", "name", "subtype", "segment", "collection_date", "accession",
	"clade", "location", "host", "length", "sequence_hash", "raw_header",
}

// RenderMetadataCSV writes every parsed field except the sequence itself.
func RenderMetadataCSV(name string, ds core.Dataset) (Rendered, error) {
	rows := make([][]string, 0, ds.Len())
	for _, r := range ds.Records() {
		rows = append(rows, []string{
			strconv.Itoa(r.Ordinal),
			r.Fields.Name,
			r.Fields.Subtype,
			r.Fields.Segment,
			r.Fields.Date.String(),
			r.Fields.Accession,
			r.Fields.Clade,
			r.Location,
			r.Host,
			strconv.Itoa(r.Length()),
			r.SequenceHash(),
			r.Header,
		})
	}
	body, err := writeCSV(metadataHeader, rows)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Name: name, Format: FormatMetadataCSV, ContentType: "text/csv", Records: ds.Len(), Body: body}, nil
}

// RenderClusterCSV summarises every clone of the partition, including those
// below the matrix threshold. Representatives follow the matrix policy.
func RenderClusterCSV(name string, m core.TimelineMatrix) (Rendered, error) {
	ds := m.Partition.Dataset()
	clones := m.Partition.Clones()
	rows := make([][]string, 0, len(clones))
	for _, c := range clones {
		rows = append(rows, []string{
			c.ID,
			core.Label(ds.At(m.Partition.Representative(c, m.Options.Policy))),
			strconv.Itoa(c.Size()),
			c.FirstDate.String(),
			c.LastDate.String(),
		})
	}
	body, err := writeCSV([]string{"clone_id", "representative_accession", "cluster_size", "first_date", "last_date"}, rows)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Name: name, Format: FormatClusterCSV, ContentType: "text/csv", Records: len(rows), Body: body}, nil
}

// RenderMatrixCSV writes the presence matrix with one 0/1 column per month.
func RenderMatrixCSV(name string, m core.TimelineMatrix) (Rendered, error) {
	header := []string{"clone_id", "label", "cluster_size", "first_date", "last_date", "months_active"}
	for _, month := range m.Months {
		header = append(header, month.String())
	}
	rows := make([][]string, 0, len(m.Rows))
	for _, row := range m.Rows {
		line := []string{
			row.Clone.ID,
			row.Label,
			strconv.Itoa(row.Clone.Size()),
			row.Clone.FirstDate.String(),
			row.Clone.LastDate.String(),
			strconv.Itoa(row.MonthsActive()),
		}
		for _, active := range row.Active {
			if active {
				line = append(line, "1")
			} else {
				line = append(line, "0")
			}
		}
		rows = append(rows, line)
	}
	body, err := writeCSV(header, rows)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Name: name, Format: FormatMatrixCSV, ContentType: "text/csv", Records: len(rows), Body: body}, nil
}

// RenderMethodology writes the reproducibility snapshot.
func RenderMethodology(name string, m core.Methodology) (Rendered, error) {
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Name: name, Format: FormatMethodology, ContentType: "application/json", Records: m.OutputSequenceCount, Body: append(body, '\n')}, nil
}

// RenderAccessions writes the distinct known accessions, one per line.
func RenderAccessions(name string, ds core.Dataset) (Rendered, error) {
	ids := core.ExtractAccessions(ds)
	var buf bytes.Buffer
	for _, id := range ids {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	return Rendered{Name: name, Format: FormatAccessions, ContentType: "text/plain", Records: len(ids), Body: buf.Bytes()}, nil
}

// RenderSplitZip writes one FASTA member per distinct value of key, named
// "<key>_<value>.fasta" in natural value order.
func RenderSplitZip(name string, ds core.Dataset, key domain.FieldKey) (Rendered, error) {
	if !key.Valid() {
		return Rendered{}, fmt.Errorf("split: %w: %d", domain.ErrUnknownField, key)
	}
	groups := make(map[string][]core.Record)
	for _, r := range ds.Records() {
		v := key.Value(r)
		groups[v] = append(groups[v], r)
	}
	values := make([]string, 0, len(groups))
	for v := range groups {
		values = append(values, v)
	}
	sort.Sort(natural.StringSlice(values))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int)
	for _, v := range values {
		member := key.String() + "_" + safeName(v)
		if n := used[member]; n > 0 {
			used[member] = n + 1
			member += "_" + strconv.Itoa(n+1)
		} else {
			used[member] = 1
		}
		w, err := zw.Create(member + ".fasta")
		if err != nil {
			return Rendered{}, err
		}
		if err := fasta.Write(w, groups[v]); err != nil {
			return Rendered{}, err
		}
	}
	if err := zw.Close(); err != nil {
		return Rendered{}, err
	}
	return Rendered{Name: name, Format: FormatSplitZip, ContentType: "application/zip", Records: ds.Len(), Body: buf.Bytes()}, nil
}

var unsafeChars = strings.NewReplacer(
	"/", "_", "\\", "_", "|", "_", " ", "_", ":", "_",
	"*", "_", "?", "_", `"`, "_", "<", "_", ">", "_",
)

func safeName(v string) string {
	if v == "" {
		return domain.Unknown
	}
	return unsafeChars.Replace(v)
}

// RenderActionLog writes the session history as a JSON array.
func RenderActionLog(name string, actions []core.Action) (Rendered, error) {
	if actions == nil {
		actions = []core.Action{}
	}
	body, err := json.MarshalIndent(actions, "", "  ")
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Name: name, Format: FormatActionLog, ContentType: "application/json", Records: len(actions), Body: append(body, '\n')}, nil
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
