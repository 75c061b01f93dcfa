// Package testsupport writes reference and eventalign fixtures for tests.
package testsupport

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/exascience/nanocompore/eventalign"
)

// KmerSize mirrors the k-mer length of eventalign records.
const KmerSize = 5

// RandomSequence returns a random nucleotide sequence of length n.
func RandomSequence(rng *rand.Rand, n int) string {
	const bases = "ACGT"
	b := make([]byte, n)
	for i := range b {
		b[i] = bases[rng.Intn(len(bases))]
	}
	return string(b)
}

// WriteFasta writes seqs to dir/ref.fa in contig name order, with lines
// of at most 60 bases.
func WriteFasta(t testing.TB, dir string, seqs map[string]string) string {
	t.Helper()
	var names []string
	for name := range seqs {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, ">%v\n", name)
		seq := seqs[name]
		for len(seq) > 60 {
			sb.WriteString(seq[:60] + "\n")
			seq = seq[60:]
		}
		sb.WriteString(seq + "\n")
	}
	path := filepath.Join(dir, "ref.fa")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write fasta: %v", err)
	}
	return path
}

// FullRead returns a record for a read covering every k-mer position of
// seq, with intensities drawn around mean.
func FullRead(readID, refID, seq string, mean float64, rng *rand.Rand) *eventalign.Record {
	rec := &eventalign.Record{Header: eventalign.Header{ReadID: readID, RefID: refID}}
	for pos := 0; pos+KmerSize <= len(seq); pos++ {
		rec.Events = append(rec.Events, eventalign.Event{
			RefPos:    pos,
			RefKmer:   seq[pos : pos+KmerSize],
			Median:    mean + rng.NormFloat64(),
			DwellTime: 0.005 + 0.01*rng.Float64(),
		})
	}
	return rec
}

// WriteSample writes records to path and its index, and returns the
// index entries.
func WriteSample(t testing.TB, path string, records ...*eventalign.Record) []eventalign.IndexEntry {
	t.Helper()
	w, err := eventalign.Create(path)
	if err != nil {
		t.Fatalf("create sample: %v", err)
	}
	var entries []eventalign.IndexEntry
	for _, rec := range records {
		entry, err := w.Write(rec)
		if err != nil {
			t.Fatalf("write record: %v", err)
		}
		entries = append(entries, entry)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close sample: %v", err)
	}
	return entries
}

/*
SimulateSample writes reads reads per reference to path. Reads of a
reference are named <refID>_<i>. Intensities are drawn around mean, with
the given seed.
*/
func SimulateSample(t testing.TB, path string, seqs map[string]string, reads int, mean float64, seed int64) []eventalign.IndexEntry {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var refIDs []string
	for refID := range seqs {
		refIDs = append(refIDs, refID)
	}
	sort.Strings(refIDs)
	var records []*eventalign.Record
	for _, refID := range refIDs {
		for i := 0; i < reads; i++ {
			records = append(records, FullRead(fmt.Sprintf("%v_%v", refID, i), refID, seqs[refID], mean, rng))
		}
	}
	return WriteSample(t, path, records...)
}

// SheetCondition is a condition of a YAML sample sheet.
type SheetCondition struct {
	Label   string
	Samples [][2]string
}

// WriteSampleSheet writes a YAML sample sheet to path.
func WriteSampleSheet(t testing.TB, path string, conditions ...SheetCondition) {
	t.Helper()
	var sb strings.Builder
	for _, cond := range conditions {
		fmt.Fprintf(&sb, "%v:\n", cond.Label)
		for _, sample := range cond.Samples {
			fmt.Fprintf(&sb, "  %v: %v\n", sample[0], sample[1])
		}
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write sample sheet: %v", err)
	}
}
