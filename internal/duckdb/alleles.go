package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/inodb/vibe-repseq/internal/library"
	"github.com/inodb/vibe-repseq/internal/refpoint"
)

// ExportOptions controls WriteLibrary.
type ExportOptions struct {
	// Sequences materializes every allele sequence. Alleles whose sequence
	// cannot be resolved are exported with a NULL sequence.
	Sequences bool
	// Workers bounds concurrent sequence reconstruction; 0 means one per CPU.
	Workers int
}

// AlleleRow is one exported allele.
type AlleleRow struct {
	Library          string
	TaxonID          int32
	Chain            string
	Gene             string
	GeneType         string
	Allele           string
	IsReference      bool
	IsFunctional     bool
	Parent           string
	Accession        string
	ReferenceFeature string
	Mutations        string
	Sequence         sql.NullString
}

// WriteLibrary replaces the rows of lib with its current contents using the
// Appender API. Rows of other taxa under the same library name are kept.
func (s *Store) WriteLibrary(ctx context.Context, lib *library.Library, opts ExportOptions) error {
	for _, taxon := range lib.TaxonIDs() {
		if err := s.clearTaxon(lib.Name(), taxon); err != nil {
			return err
		}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		alleles, err := goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "alleles")
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}
		defer alleles.Close()
		anchors, err := goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "anchor_points")
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}
		defer anchors.Close()
		species, err := goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "species_names")
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}
		defer species.Close()

		for name, id := range lib.SpeciesNames() {
			if err := species.AppendRow(lib.Name(), name, id); err != nil {
				return fmt.Errorf("append species name: %w", err)
			}
		}

		var loci []library.SpeciesAndChain
		var all []library.Allele
		for _, locus := range lib.Loci() {
			for _, a := range locus.AllAlleles() {
				loci = append(loci, locus.SpeciesAndChain())
				all = append(all, a)
			}
		}

		appendAllele := func(i int, sequence sql.NullString) error {
			a, sac := all[i], loci[i]
			row := alleleRow(lib.Name(), sac, a)
			row.Sequence = sequence
			var sv any
			if row.Sequence.Valid {
				sv = row.Sequence.String
			}
			if err := alleles.AppendRow(
				row.Library, row.TaxonID, row.Chain, row.Gene, row.GeneType, row.Allele,
				row.IsReference, row.IsFunctional, row.Parent, row.Accession,
				row.ReferenceFeature, row.Mutations, sv,
			); err != nil {
				return fmt.Errorf("append allele %s: %w", a.Name(), err)
			}

			points := a.Points()
			for _, p := range refpoint.Points() {
				if !points.Defined(p) {
					continue
				}
				if err := anchors.AppendRow(lib.Name(), sac.TaxonID, a.Name(), p.String(), points.Position(p)); err != nil {
					return fmt.Errorf("append anchor point: %w", err)
				}
			}
			return nil
		}

		if opts.Sequences {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			results := lib.ParallelSequences(ctx, library.SequenceJobs(ctx, all), opts.Workers)
			err := library.OrderedCollect(results, func(r library.SequenceResult) error {
				var sequence sql.NullString
				if r.Err == nil {
					sequence = sql.NullString{String: r.Sequence.String(), Valid: true}
				} else {
					s.logger.Warn("allele sequence unavailable", zap.String("allele", r.Allele.Name()), zap.Error(r.Err))
				}
				if err := appendAllele(r.Seq, sequence); err != nil {
					cancel()
					return err
				}
				return nil
			})
			if err != nil {
				return err
			}
		} else {
			for i := range all {
				if err := appendAllele(i, sql.NullString{}); err != nil {
					return err
				}
			}
		}

		for _, app := range []*goduckdb.Appender{species, alleles, anchors} {
			if err := app.Flush(); err != nil {
				return fmt.Errorf("flush appender: %w", err)
			}
		}
		return nil
	})
}

func alleleRow(name string, sac library.SpeciesAndChain, a library.Allele) AlleleRow {
	row := AlleleRow{
		Library:      name,
		TaxonID:      sac.TaxonID,
		Chain:        string(sac.Chain),
		Gene:         a.Gene().Name(),
		GeneType:     a.Gene().Type().String(),
		Allele:       a.Name(),
		IsReference:  a.IsReference(),
		IsFunctional: a.IsFunctional(),
		Accession:    library.Root(a).Accession(),
	}
	if v, ok := a.(*library.AllelicVariant); ok {
		row.Parent = v.Parent().Name()
		row.ReferenceFeature = v.ReferenceFeature().String()
		row.Mutations = strings.Join(v.Mutations().Strings(), ",")
	}
	return row
}

// ClearLibrary removes every exported row of the named library.
func (s *Store) ClearLibrary(name string) error {
	for _, table := range []string{"alleles", "anchor_points", "species_names"} {
		if _, err := s.db.Exec("DELETE FROM "+table+" WHERE library=?", name); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) clearTaxon(name string, taxonID int32) error {
	for _, table := range []string{"alleles", "anchor_points", "species_names"} {
		if _, err := s.db.Exec("DELETE FROM "+table+" WHERE library=? AND taxon_id=?", name, taxonID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

const alleleColumns = `library, taxon_id, chain, gene, gene_type, allele,
	is_reference, is_functional, parent, accession, reference_feature,
	mutations, sequence`

// LookupAllele returns an exported allele, or nil if there is none.
func (s *Store) LookupAllele(libraryName string, taxonID int32, allele string) (*AlleleRow, error) {
	rows, err := s.db.Query(`SELECT `+alleleColumns+`
		FROM alleles
		WHERE library=? AND taxon_id=? AND allele=?`,
		libraryName, taxonID, allele)
	if err != nil {
		return nil, fmt.Errorf("query allele: %w", err)
	}
	defer rows.Close()

	found, err := scanAlleleRows(rows)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// SearchByGene returns every exported allele of a gene, across libraries.
func (s *Store) SearchByGene(gene string) ([]AlleleRow, error) {
	rows, err := s.db.Query(`SELECT `+alleleColumns+`
		FROM alleles
		WHERE gene=?
		ORDER BY library, taxon_id, allele`, gene)
	if err != nil {
		return nil, fmt.Errorf("query by gene: %w", err)
	}
	defer rows.Close()

	return scanAlleleRows(rows)
}

// AnchorPoints returns the exported anchors of an allele by name.
func (s *Store) AnchorPoints(libraryName string, taxonID int32, allele string) (map[string]int32, error) {
	rows, err := s.db.Query(`SELECT point, position
		FROM anchor_points
		WHERE library=? AND taxon_id=? AND allele=?`,
		libraryName, taxonID, allele)
	if err != nil {
		return nil, fmt.Errorf("query anchor points: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int32)
	for rows.Next() {
		var point string
		var pos int32
		if err := rows.Scan(&point, &pos); err != nil {
			return nil, fmt.Errorf("scan anchor point: %w", err)
		}
		out[point] = pos
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchor points: %w", err)
	}
	return out, nil
}

// GeneCounts aggregates the exported alleles of a library the way
// Library.Stats does.
func (s *Store) GeneCounts(libraryName string) ([]library.Stat, error) {
	rows, err := s.db.Query(`SELECT taxon_id, chain, gene_type,
			count(DISTINCT gene), count(*), count_if(is_functional)
		FROM alleles
		WHERE library=?
		GROUP BY taxon_id, chain, gene_type
		ORDER BY taxon_id, chain,
			CASE gene_type WHEN 'V' THEN 0 WHEN 'D' THEN 1 WHEN 'J' THEN 2 ELSE 3 END`,
		libraryName)
	if err != nil {
		return nil, fmt.Errorf("query gene counts: %w", err)
	}
	defer rows.Close()

	var out []library.Stat
	for rows.Next() {
		var st library.Stat
		var chain, gt string
		if err := rows.Scan(&st.TaxonID, &chain, &gt, &st.Genes, &st.Alleles, &st.Functional); err != nil {
			return nil, fmt.Errorf("scan gene counts: %w", err)
		}
		st.Chain = library.Chain(chain)
		if st.GeneType, err = library.ParseGeneType(gt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gene counts: %w", err)
	}
	return out, nil
}

// scanAlleleRows scans rows into AlleleRow slices.
func scanAlleleRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]AlleleRow, error) {
	var out []AlleleRow
	for rows.Next() {
		var r AlleleRow
		if err := rows.Scan(
			&r.Library, &r.TaxonID, &r.Chain, &r.Gene, &r.GeneType, &r.Allele,
			&r.IsReference, &r.IsFunctional, &r.Parent, &r.Accession,
			&r.ReferenceFeature, &r.Mutations, &r.Sequence,
		); err != nil {
			return nil, fmt.Errorf("scan allele: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alleles: %w", err)
	}
	return out, nil
}
