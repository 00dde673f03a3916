// Package output provides allele listing formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/refpoint"
	"github.com/inodb/vibe-repseq/internal/seq"
)

// TabWriter writes alleles in tab-delimited format.
type TabWriter struct {
	w         *bufio.Writer
	columns   []string
	sequences bool
}

// NewTabWriter creates a new tab-delimited writer. With sequences set, every
// row ends with a Sequence column.
func NewTabWriter(w io.Writer, sequences bool) *TabWriter {
	columns := []string{
		"#Allele",
		"Gene",
		"Gene_type",
		"Chain",
		"Taxon_id",
		"Functional",
		"Parent",
		"Accession",
		"Reference_feature",
		"Mutations",
		"Anchor_points",
	}
	if sequences {
		columns = append(columns, "Sequence")
	}
	return &TabWriter{w: bufio.NewWriter(w), columns: columns, sequences: sequences}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single allele. s is ignored unless the writer was created
// with sequences; an empty s is written as "-".
func (tw *TabWriter) Write(sac library.SpeciesAndChain, a library.Allele, s seq.Sequence) error {
	functional := "NO"
	if a.IsFunctional() {
		functional = "YES"
	}

	parent, feature, mutations := "-", "-", "-"
	if v, ok := a.(*library.AllelicVariant); ok {
		parent = v.Parent().Name()
		feature = v.ReferenceFeature().String()
		if len(v.Mutations()) > 0 {
			mutations = strings.Join(v.Mutations().Strings(), ",")
		}
	}

	values := []string{
		a.Name(),
		a.Gene().Name(),
		a.Gene().Type().String(),
		string(sac.Chain),
		fmt.Sprintf("%d", sac.TaxonID),
		functional,
		parent,
		library.Root(a).Accession(),
		feature,
		mutations,
		formatPoints(a.Points()),
	}
	if tw.sequences {
		sequence := s.String()
		if sequence == "" {
			sequence = "-"
		}
		values = append(values, sequence)
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// formatPoints lists the defined anchors as Name=pos in canonical order.
func formatPoints(points refpoint.ReferencePoints) string {
	var parts []string
	for _, p := range refpoint.Points() {
		if points.Defined(p) {
			parts = append(parts, fmt.Sprintf("%s=%d", p, points.Position(p)))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}
