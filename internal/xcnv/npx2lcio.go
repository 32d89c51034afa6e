// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/internal/npx2"
	"go-hep.org/x/hep/lcio"
)

// NPX2LCIO converts the records decoded from dec into LCIO events,
// one event per packet.
func NPX2LCIO(w *lcio.Writer, dec *npx2.Decoder, run int32, msg *log.Logger) error {
	var (
		buf = new(bytes.Buffer)
		enc = npx2.NewEncoder(buf)
		raw = &lcio.GenericObject{
			Data: []lcio.GenericObjectData{
				{I32s: nil},
			},
		}
	)

loop:
	for i := 0; ; i++ {
		if i%1000 == 0 {
			msg.Printf("processing evt %d...", i)
		}
		var rec npx2.Record
		err := dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode NPX2 record: %w", err)
		}

		if i == 0 {
			err = w.WriteRunHeader(&lcio.RunHeader{
				RunNumber: run,
				Detector:  detector,
				Descr:     "",
				Params: lcio.Params{
					Ints: map[string][]int32{
						"NumChannels": {driver.NumChannels},
						"NumAUX":      {driver.NumAUX},
					},
				},
			})
			if err != nil {
				return fmt.Errorf("could not write run header: %w", err)
			}
		}

		buf.Reset()
		err = enc.Encode(&rec)
		if err != nil {
			return fmt.Errorf("could not re-encode NPX2 record: %w", err)
		}

		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(i),
			TimeStamp:   int64(rec.Packet.Timestamp[0]),
			Detector:    detector,
		}
		raw.Data[0].I32s = i32sFrom(buf.Bytes())
		evt.Add(collName, raw)

		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write LCIO event: %w", err)
		}
	}

	return nil
}
