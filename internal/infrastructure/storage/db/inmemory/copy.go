package inmemory

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// deepCopy copies src into dst through the same gob encoding used by the
// badger store, so that callers never share maps or slices with the store.
func deepCopy(src, dst interface{}) error {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(src); err != nil {
		return fmt.Errorf("failed to copy %T: %w", src, err)
	}
	return gob.NewDecoder(buf).Decode(dst)
}
