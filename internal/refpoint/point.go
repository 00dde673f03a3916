// Package refpoint implements the anchor-point coordinate system of a gene:
// named landmark positions, gene features spanning them, and feature
// extraction from a sequence.
package refpoint

import "fmt"

// Point is a named anchor position within a gene, in canonical order.
type Point int

const (
	UTR5Begin Point = iota
	V5UTREnd
	L1End
	VIntronEnd
	FR1Begin
	CDR1Begin
	FR2Begin
	CDR2Begin
	FR3Begin
	CDR3Begin
	VEnd
	DBegin
	DEnd
	JBegin
	FR4Begin
	FR4End
	CBegin
	CExon1End
	CEnd

	// NumPoints is the number of anchor slots in ReferencePoints.
	NumPoints = int(iota)
)

// Alternative names for anchors that close one region and open the next.
const (
	L1Begin      = V5UTREnd
	VIntronBegin = L1End
	L2Begin      = VIntronEnd
	L2End        = FR1Begin
	CDR3End      = FR4Begin
)

var pointNames = [NumPoints]string{
	"UTR5Begin", "V5UTREnd", "L1End", "VIntronEnd", "FR1Begin", "CDR1Begin",
	"FR2Begin", "CDR2Begin", "FR3Begin", "CDR3Begin", "VEnd", "DBegin", "DEnd",
	"JBegin", "FR4Begin", "FR4End", "CBegin", "CExon1End", "CEnd",
}

var pointByName = func() map[string]Point {
	m := make(map[string]Point, NumPoints+5)
	for i, name := range pointNames {
		m[name] = Point(i)
	}
	m["L1Begin"] = L1Begin
	m["VIntronBegin"] = VIntronBegin
	m["L2Begin"] = L2Begin
	m["L2End"] = L2End
	m["CDR3End"] = CDR3End
	return m
}()

// Valid reports whether p names an anchor slot.
func (p Point) Valid() bool {
	return p >= 0 && int(p) < NumPoints
}

func (p Point) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Point(%d)", int(p))
	}
	return pointNames[p]
}

// ParsePoint returns the anchor with the given canonical or alternative name.
func ParsePoint(name string) (Point, error) {
	p, ok := pointByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown reference point %q", name)
	}
	return p, nil
}

// Points returns every anchor in canonical order.
func Points() []Point {
	out := make([]Point, NumPoints)
	for i := range out {
		out[i] = Point(i)
	}
	return out
}
