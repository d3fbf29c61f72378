package hmmsim

import (
	"compress/gzip"
	"encoding/gob"
	"io"
	"os"

	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
)

// Dataset is a set of observation sequences, with the model and hidden
// states that generated them when they are known.
type Dataset struct {

	// The generating model, may be nil
	Model *hmmlib.Model

	// The true states, may be nil
	States [][]int

	// The observations
	Obs [][]float64
}

// Write writes the dataset to w as a gzip-compressed gob.
func (ds *Dataset) Write(w io.Writer) error {

	gid := gzip.NewWriter(w)
	enc := gob.NewEncoder(gid)
	if err := enc.Encode(ds); err != nil {
		return errors.Wrap(err, "hmmsim", "Dataset.Write", "encode")
	}

	if err := gid.Close(); err != nil {
		return errors.Wrap(err, "hmmsim", "Dataset.Write", "compress")
	}

	return nil
}

// ReadDataset reads a gzip-compressed gob dataset from r.
func ReadDataset(r io.Reader) (*Dataset, error) {

	gid, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "hmmsim", "ReadDataset", "decompress")
	}
	defer gid.Close()

	dec := gob.NewDecoder(gid)

	var ds Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, errors.Wrap(err, "hmmsim", "ReadDataset", "decode")
	}

	return &ds, nil
}

// Save writes the dataset to the named file.
func (ds *Dataset) Save(fname string) error {

	fid, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "hmmsim", "Dataset.Save", "create file")
	}

	if err := ds.Write(fid); err != nil {
		fid.Close()
		return err
	}

	return fid.Close()
}

// LoadDataset reads a dataset from the named file.
func LoadDataset(fname string) (*Dataset, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "hmmsim", "LoadDataset", "open file")
	}
	defer fid.Close()

	return ReadDataset(fid)
}
