// Package convert turns padded alignment FASTA files (IMGT style) into an
// unpadded FASTA file plus a JSON library referencing it.
package convert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/fasta"
	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
)

// DefaultFunctionality marks records whose functionality field contains F.
const DefaultFunctionality = `.*[Ff].*`

// Options describes the layout of the padded input.
type Options struct {
	GeneType library.GeneType
	Chain    library.Chain
	TaxonID  int32

	// NameIndex is the '|'-separated header field holding the gene name.
	NameIndex int
	// FunctionalityIndex is the header field holding the functionality mark;
	// negative means every gene is functional.
	FunctionalityIndex int
	// Functionality must match the whole functionality field.
	Functionality *regexp.Regexp

	Padding byte

	// Points are positions in the padded sequence. Negative values count from
	// the end of the unpadded sequence: -1 is its last letter.
	Points map[refpoint.Point]int32

	IgnoreDuplicates bool
}

// Stats summarizes a conversion.
type Stats struct {
	Records    int
	Genes      int
	Wildcards  int
	Duplicates int
}

// Converter converts padded FASTA records.
type Converter struct {
	opts   Options
	logger *zap.Logger
}

// New creates a converter.
func New(opts Options) *Converter {
	if opts.Padding == 0 {
		opts.Padding = '.'
	}
	if opts.Functionality == nil {
		opts.Functionality = regexp.MustCompile(DefaultFunctionality)
	}
	opts.Functionality = anchored(opts.Functionality)
	return &Converter{opts: opts, logger: zap.NewNop()}
}

// SetLogger sets the logger.
func (c *Converter) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

// Convert reads padded records from in and writes unpadded ones to out. The
// returned library references each gene as fastaRef#name. Records containing
// wildcards are skipped.
func (c *Converter) Convert(in io.Reader, out io.Writer, fastaRef string) ([]library.Data, Stats, error) {
	var stats Stats
	r := fasta.NewReader(in)
	w := fasta.NewWriter(out, 0)
	genes := make(map[string]library.GeneData)

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, err
		}
		stats.Records++

		unpadded, mapping := removePadding(rec.Sequence, c.opts.Padding)
		s, err := seq.New(unpadded)
		if err != nil {
			return nil, stats, fmt.Errorf("record %s: %w", rec.Header, err)
		}
		if s.HasWildcards() {
			stats.Wildcards++
			c.logger.Debug("skipping record with wildcards", zap.String("header", rec.Header))
			continue
		}

		fields := rec.Fields("|")
		name, err := field(fields, c.opts.NameIndex)
		if err != nil {
			return nil, stats, fmt.Errorf("record %s: gene name: %w", rec.Header, err)
		}
		functional := true
		if c.opts.FunctionalityIndex >= 0 {
			mark, err := field(fields, c.opts.FunctionalityIndex)
			if err != nil {
				return nil, stats, fmt.Errorf("record %s: functionality: %w", rec.Header, err)
			}
			functional = c.opts.Functionality.MatchString(mark)
		}

		anchors := make(map[string]int32)
		for p, pos := range c.opts.Points {
			off, ok, err := convertPosition(mapping, s.Len(), pos)
			if err != nil {
				return nil, stats, fmt.Errorf("record %s: anchor %s: %w", rec.Header, p, err)
			}
			if ok {
				anchors[p.String()] = off
			}
		}
		if _, err := library.ParseAnchorPoints(anchors); err != nil {
			return nil, stats, fmt.Errorf("record %s: %w", rec.Header, err)
		}

		if _, dup := genes[name]; dup {
			if c.opts.IgnoreDuplicates {
				stats.Duplicates++
				continue
			}
			return nil, stats, fmt.Errorf("duplicate records for %s", name)
		}

		if err := w.Write(fasta.Record{Header: rec.Header, Sequence: s.String()}); err != nil {
			return nil, stats, err
		}
		genes[name] = library.GeneData{
			Name:         name,
			GeneType:     c.opts.GeneType.String(),
			Chain:        string(c.opts.Chain),
			IsFunctional: functional,
			BaseSequence: "file://" + fastaRef + "#" + name,
			AnchorPoints: anchors,
		}
	}
	if err := w.Flush(); err != nil {
		return nil, stats, fmt.Errorf("flush FASTA: %w", err)
	}

	d := library.Data{TaxonID: c.opts.TaxonID, Genes: make([]library.GeneData, 0, len(genes))}
	for _, g := range genes {
		d.Genes = append(d.Genes, g)
	}
	sort.Slice(d.Genes, func(i, j int) bool { return d.Genes[i].Name < d.Genes[j].Name })
	stats.Genes = len(d.Genes)
	return []library.Data{d}, stats, nil
}

// ConvertFiles converts inPath into fastaPath and jsonPath. The JSON library
// addresses the FASTA file relative to its own directory.
func (c *Converter) ConvertFiles(inPath, fastaPath, jsonPath string) (Stats, error) {
	absFasta, err := filepath.Abs(fastaPath)
	if err != nil {
		return Stats{}, fmt.Errorf("resolve output FASTA: %w", err)
	}
	absJSON, err := filepath.Abs(jsonPath)
	if err != nil {
		return Stats{}, fmt.Errorf("resolve output JSON: %w", err)
	}
	ref, err := filepath.Rel(filepath.Dir(absJSON), absFasta)
	if err != nil {
		return Stats{}, fmt.Errorf("relative FASTA path: %w", err)
	}

	in, err := fasta.Open(inPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open padded FASTA: %w", err)
	}
	defer in.Close()

	fout, err := os.Create(absFasta)
	if err != nil {
		return Stats{}, fmt.Errorf("create FASTA: %w", err)
	}
	data, stats, err := c.Convert(in, fout, filepath.ToSlash(ref))
	if cerr := fout.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close FASTA: %w", cerr)
	}
	if err != nil {
		return stats, err
	}

	jout, err := os.Create(absJSON)
	if err != nil {
		return stats, fmt.Errorf("create JSON: %w", err)
	}
	if err := library.WriteData(jout, data); err != nil {
		jout.Close()
		return stats, err
	}
	if err := jout.Close(); err != nil {
		return stats, fmt.Errorf("close JSON: %w", err)
	}
	c.logger.Info("converted padded FASTA",
		zap.String("input", inPath),
		zap.Int("records", stats.Records),
		zap.Int("genes", stats.Genes),
		zap.Int("wildcards", stats.Wildcards),
		zap.Int("duplicates", stats.Duplicates))
	return stats, nil
}

// removePadding strips pad from s. mapping[i] is the unpadded offset of
// padded position i, or -1 for a padding position; mapping[len(s)] is the
// unpadded length.
func removePadding(s string, pad byte) (string, []int32) {
	out := make([]byte, 0, len(s))
	mapping := make([]int32, len(s)+1)
	for i := 0; i < len(s); i++ {
		if s[i] == pad {
			mapping[i] = -1
			continue
		}
		mapping[i] = int32(len(out))
		out = append(out, s[i])
	}
	mapping[len(s)] = int32(len(out))
	return string(out), mapping
}

// convertPosition maps a padded position to the unpadded sequence. ok is
// false when the position falls on padding.
func convertPosition(mapping []int32, unpaddedLen int, pos int32) (int32, bool, error) {
	if pos < 0 {
		off := int32(unpaddedLen) + pos
		if off < 0 {
			return 0, false, fmt.Errorf("position %d before sequence start", pos)
		}
		return off, true, nil
	}
	if int(pos) >= len(mapping) {
		return 0, false, fmt.Errorf("position %d beyond padded length %d", pos, len(mapping)-1)
	}
	off := mapping[pos]
	return off, off >= 0, nil
}

func field(fields []string, i int) (string, error) {
	if i < 0 || i >= len(fields) {
		return "", fmt.Errorf("no field %d in %d header fields", i, len(fields))
	}
	return fields[i], nil
}

func anchored(re *regexp.Regexp) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + re.String() + `)$`)
}

// ParsePoints parses anchor positions given as name=position pairs.
func ParsePoints(m map[string]string) (map[refpoint.Point]int32, error) {
	out := make(map[refpoint.Point]int32, len(m))
	for name, v := range m {
		p, err := refpoint.ParsePoint(name)
		if err != nil {
			return nil, err
		}
		pos, err := strconv.ParseInt(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("anchor %s: invalid position %q", name, v)
		}
		out[p] = int32(pos)
	}
	return out, nil
}
