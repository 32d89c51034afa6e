// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/npx/internal/npx2"
	"go-hep.org/x/hep/lcio"
)

// LCIO2NPX converts the LCIO events read from r back into NPX2 records.
func LCIO2NPX(w io.Writer, r *lcio.Reader, freq int, msg *log.Logger) error {
	var (
		enc = npx2.NewEncoder(w)
		i   = 0
	)

	for r.Next() {
		if i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		obj, ok := evt.Get(collName).(*lcio.GenericObject)
		if !ok || len(obj.Data) == 0 {
			return fmt.Errorf("could not find %q collection in event %d", collName, i)
		}
		buf := bytesFromI32s(obj.Data[0].I32s)

		var rec npx2.Record
		err := npx2.NewDecoder(bytes.NewReader(buf)).Decode(&rec)
		if err != nil {
			return fmt.Errorf("could not decode NPX2 record: %w", err)
		}
		err = enc.Encode(&rec)
		if err != nil {
			return fmt.Errorf("could not re-encode NPX2 record: %w", err)
		}
		i++
	}

	if err := r.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("could not read LCIO events: %w", err)
	}

	return nil
}
