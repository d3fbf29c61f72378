package bhmm

import (
	"compress/gzip"
	"encoding/gob"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
)

// Posterior holds the result of a fit: the model the chain started from
// and the collected samples, in order.  No two models share storage.
type Posterior struct {

	// Identifies the fit that produced the posterior
	ID string

	// When the fit finished
	Created time.Time

	// The model the chain started from
	Prior *hmmlib.Model

	// The collected samples
	Samples []*hmmlib.Model
}

func newPosterior(prior *hmmlib.Model, samples []*hmmlib.Model) *Posterior {
	return &Posterior{
		ID:      uuid.NewString(),
		Created: time.Now(),
		Prior:   prior,
		Samples: samples,
	}
}

// Len returns the number of samples.
func (p *Posterior) Len() int {
	return len(p.Samples)
}

// All returns an iterator over the samples and their positions.  The
// iteration stops when yield returns false.
func (p *Posterior) All() func(yield func(int, *hmmlib.Model) bool) {
	return func(yield func(int, *hmmlib.Model) bool) {
		for k, m := range p.Samples {
			if !yield(k, m) {
				return
			}
		}
	}
}

// Write writes the posterior to w as a gzip-compressed gob.
func (p *Posterior) Write(w io.Writer) error {

	gid := gzip.NewWriter(w)
	enc := gob.NewEncoder(gid)
	if err := enc.Encode(p); err != nil {
		return errors.Wrap(err, "bhmm", "Posterior.Write", "encode")
	}

	if err := gid.Close(); err != nil {
		return errors.Wrap(err, "bhmm", "Posterior.Write", "compress")
	}

	return nil
}

// ReadPosterior reads a posterior written by Write.
func ReadPosterior(r io.Reader) (*Posterior, error) {

	gid, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "bhmm", "ReadPosterior", "decompress")
	}
	defer gid.Close()

	var p Posterior
	if err := gob.NewDecoder(gid).Decode(&p); err != nil {
		return nil, errors.Wrap(err, "bhmm", "ReadPosterior", "decode")
	}

	return &p, nil
}

// Save writes the posterior to the named file.
func (p *Posterior) Save(fname string) error {

	fid, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "bhmm", "Posterior.Save", "create file")
	}

	if err := p.Write(fid); err != nil {
		fid.Close()
		return err
	}

	return fid.Close()
}

// LoadPosterior reads a posterior from the named file.
func LoadPosterior(fname string) (*Posterior, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "bhmm", "LoadPosterior", "open file")
	}
	defer fid.Close()

	return ReadPosterior(fid)
}
