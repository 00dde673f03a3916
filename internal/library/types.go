// Package library models a reference library of V, D, J and C genes: loci,
// genes, reference alleles and allelic variants stored as edits against
// their parent.
package library

import (
	"fmt"
	"strings"

	"github.com/inodb/vibe-repseq/internal/refpoint"
)

// GeneType is the segment type of a gene. Values are the container wire codes.
type GeneType byte

const (
	Variable  GeneType = 0
	Joining   GeneType = 1
	Diversity GeneType = 2
	Constant  GeneType = 3

	numGeneTypes = 4
)

// GeneTypes lists every gene type in V, D, J, C order.
var GeneTypes = []GeneType{Variable, Diversity, Joining, Constant}

var geneTypeLetters = [numGeneTypes]string{"V", "J", "D", "C"}

// Valid reports whether g is a known gene type.
func (g GeneType) Valid() bool {
	return g < numGeneTypes
}

func (g GeneType) String() string {
	if !g.Valid() {
		return fmt.Sprintf("GeneType(%d)", byte(g))
	}
	return geneTypeLetters[g]
}

// ParseGeneType parses a gene type letter (V, D, J or C), ignoring case.
func ParseGeneType(s string) (GeneType, error) {
	for i, letter := range geneTypeLetters {
		if strings.EqualFold(s, letter) {
			return GeneType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gene type %q", s)
}

var geneTypePoints = [numGeneTypes][]refpoint.Point{
	Variable: {
		refpoint.UTR5Begin, refpoint.V5UTREnd, refpoint.L1End, refpoint.VIntronEnd,
		refpoint.FR1Begin, refpoint.CDR1Begin, refpoint.FR2Begin, refpoint.CDR2Begin,
		refpoint.FR3Begin, refpoint.CDR3Begin, refpoint.VEnd,
	},
	Diversity: {refpoint.DBegin, refpoint.DEnd},
	Joining:   {refpoint.JBegin, refpoint.FR4Begin, refpoint.FR4End},
	Constant:  {refpoint.CBegin, refpoint.CExon1End, refpoint.CEnd},
}

// Points returns the anchors a gene of this type can define, in canonical
// order. The container stores exactly these anchors per reference allele.
func (g GeneType) Points() []refpoint.Point {
	return geneTypePoints[g]
}

// Chain is an immune receptor chain.
type Chain string

const (
	TRA Chain = "TRA"
	TRB Chain = "TRB"
	TRG Chain = "TRG"
	TRD Chain = "TRD"
	IGH Chain = "IGH"
	IGK Chain = "IGK"
	IGL Chain = "IGL"
)

// Chains lists every known chain.
var Chains = []Chain{TRA, TRB, TRG, TRD, IGH, IGK, IGL}

// ParseChain parses a chain identifier, ignoring case.
func ParseChain(s string) (Chain, error) {
	for _, c := range Chains {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown chain %q", s)
}

// SpeciesAndChain identifies a locus.
type SpeciesAndChain struct {
	TaxonID int32
	Chain   Chain
}

func (s SpeciesAndChain) String() string {
	return fmt.Sprintf("%d:%s", s.TaxonID, s.Chain)
}

// GeneName derives a gene name from an allele name: everything before the
// last '*', or the whole name when there is none.
func GeneName(alleleName string) string {
	if i := strings.LastIndexByte(alleleName, '*'); i >= 0 {
		return alleleName[:i]
	}
	return alleleName
}
