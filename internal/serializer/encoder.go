// Package serializer encodes batches of runs into the zstd-compressed
// multipart/form-data payload the bulk ingestion endpoint expects.
package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strconv"

	"github.com/DataDog/zstd"

	"github.com/langchain-ai/langsmith-trace-tools/internal/model"
)

// Encoder accumulates runs into one compressed multipart body. Close finishes
// the current batch and resets the encoder for the next one, so a single
// Encoder serves the whole upload. Not safe for concurrent use.
type Encoder struct {
	boundary string
	zw       io.WriteCloser
	buf      *bytes.Buffer

	uncompressed int
	runCount     int
}

func NewEncoder() *Encoder {
	e := &Encoder{}
	e.reset()
	return e
}

func (e *Encoder) reset() {
	e.boundary = "----LangSmithFormBoundary-" + strconv.FormatUint(rand.Uint64(), 36)
	e.buf = &bytes.Buffer{}
	e.zw = zstd.NewWriter(e.buf)
	e.uncompressed = 0
	e.runCount = 0
}

// AddRun appends one run as a `post.<id>` part. Inputs and outputs travel as
// their own parts, matching how the ingestion API wants large payload fields
// split out.
func (e *Encoder) AddRun(r *model.Run) error {
	id := *r.ID
	head := *r
	head.Inputs, head.Outputs = nil, nil
	if err := e.part("post."+id, &head); err != nil {
		return err
	}
	if r.Inputs != nil {
		if err := e.part("post."+id+".inputs", r.Inputs); err != nil {
			return err
		}
	}
	if r.Outputs != nil {
		if err := e.part("post."+id+".outputs", r.Outputs); err != nil {
			return err
		}
	}
	e.runCount++
	return nil
}

func (e *Encoder) part(name string, v any) error {
	j, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.uncompressed += len(j)
	header := fmt.Sprintf("--%s\r\nContent-Disposition: form-data; name=%q\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n",
		e.boundary, name, len(j))
	if _, err := e.zw.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := e.zw.Write(j); err != nil {
		return err
	}
	_, err = e.zw.Write([]byte("\r\n"))
	return err
}

// Close writes the terminating boundary and returns the compressed body, its
// boundary string, and the uncompressed size. The encoder is reset and ready
// for the next batch afterwards.
func (e *Encoder) Close() (data []byte, boundary string, uncompressed int, err error) {
	if e.runCount > 0 {
		if _, err = fmt.Fprintf(e.zw, "--%s--\r\n", e.boundary); err == nil {
			err = e.zw.Close()
		}
		if err == nil {
			data = e.buf.Bytes()
			boundary = e.boundary
			uncompressed = e.uncompressed
		}
	}
	e.reset()
	return data, boundary, uncompressed, err
}

func (e *Encoder) Uncompressed() int { return e.uncompressed }

func (e *Encoder) RunCount() int { return e.runCount }
