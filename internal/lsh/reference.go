package lsh

import "lshann/internal/dataset"

// reference is the index's handle on its reference set. Whether the index
// may release the data is a property of the handle's type.
type reference interface {
	data() *dataset.Dataset
	owned() bool
	release()
}

// borrowed data stays with the caller and must outlive the index.
type borrowed struct{ ds *dataset.Dataset }

func (b borrowed) data() *dataset.Dataset { return b.ds }
func (borrowed) owned() bool              { return false }
func (borrowed) release()                 {}

// exclusive data was handed over to the index or loaded by it.
type exclusive struct{ ds *dataset.Dataset }

func (e exclusive) data() *dataset.Dataset { return e.ds }
func (exclusive) owned() bool              { return true }
func (e exclusive) release()               { e.ds.Release() }
