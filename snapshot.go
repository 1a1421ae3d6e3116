package experience

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/cartridge/experience/numeric"
)

// Snapshot framing: a four-byte magic, a version byte, then a gob
// payload.
var snapshotMagic = []byte("XREP")

const snapshotVersion byte = 1

func init() {
	gob.Register(map[string]any{})
	gob.Register(map[string]string{})
	gob.Register([]any{})
}

// RegisterOpaque registers a concrete type used in opaque field values so
// snapshots holding it can be encoded and decoded. Strings, numbers,
// bools and their slices work out of the box.
func RegisterOpaque(v any) {
	gob.Register(v)
}

type snapshotValue struct {
	Array  *numeric.Array
	Opaque any
}

type snapshotRecord struct {
	Fields []string
	Values []snapshotValue
	Device string
}

type snapshotPayload struct {
	Vectorized bool
	Device     string
	Records    []snapshotRecord
}

// WriteTo writes the buffer contents in snapshot form. The layout flag
// and device tags travel with the records.
func (r *Replay) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	header := make([]byte, 0, len(snapshotMagic)+1)
	header = append(header, snapshotMagic...)
	header = append(header, snapshotVersion)
	if _, err := cw.Write(header); err != nil {
		return cw.n, fmt.Errorf("experience: write snapshot header: %w", err)
	}

	records := r.snapshot()
	payload := snapshotPayload{
		Vectorized: r.vectorized,
		Device:     string(r.device),
		Records:    make([]snapshotRecord, len(records)),
	}
	for i, t := range records {
		rec := snapshotRecord{
			Fields: t.fields,
			Values: make([]snapshotValue, len(t.fields)),
			Device: string(t.device),
		}
		for j, name := range t.fields {
			v := t.values[name]
			if v.IsArray() {
				rec.Values[j].Array = v.Array()
			} else {
				rec.Values[j].Opaque = v.Opaque()
			}
		}
		payload.Records[i] = rec
	}
	if err := gob.NewEncoder(cw).Encode(payload); err != nil {
		return cw.n, fmt.Errorf("experience: encode snapshot: %w", err)
	}
	return cw.n, nil
}

// ReadFrom replaces the buffer contents with a snapshot. The snapshot
// must agree with the buffer on vectorization. Capacity still applies,
// so a bounded buffer keeps only the newest records.
func (r *Replay) ReadFrom(src io.Reader) (int64, error) {
	cr := &countingReader{r: src}

	header := make([]byte, len(snapshotMagic)+1)
	if _, err := io.ReadFull(cr, header); err != nil {
		return cr.n, fmt.Errorf("%w: reading header: %v", ErrBadSnapshot, err)
	}
	if !bytes.Equal(header[:len(snapshotMagic)], snapshotMagic) {
		return cr.n, fmt.Errorf("%w: bad magic", ErrBadSnapshot)
	}
	if version := header[len(snapshotMagic)]; version != snapshotVersion {
		return cr.n, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, version)
	}

	var payload snapshotPayload
	if err := gob.NewDecoder(cr).Decode(&payload); err != nil {
		return cr.n, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if payload.Vectorized != r.vectorized {
		return cr.n, fmt.Errorf("%w: snapshot vectorized=%t, buffer vectorized=%t", ErrIncompatibleReplays, payload.Vectorized, r.vectorized)
	}

	records := make([]*Transition, len(payload.Records))
	for i, rec := range payload.Records {
		t, err := decodeRecord(rec)
		if err != nil {
			return cr.n, fmt.Errorf("%w: record %d: %v", ErrBadSnapshot, i, err)
		}
		records[i] = t
	}

	r.mu.Lock()
	r.records.Clear()
	for _, t := range records {
		r.push(t)
	}
	r.mu.Unlock()
	return cr.n, nil
}

func decodeRecord(rec snapshotRecord) (*Transition, error) {
	if len(rec.Fields) != len(rec.Values) {
		return nil, fmt.Errorf("%d fields but %d values", len(rec.Fields), len(rec.Values))
	}
	t := &Transition{
		fields: append([]string(nil), rec.Fields...),
		values: make(map[string]Value, len(rec.Fields)),
		device: numeric.Device(rec.Device),
	}
	for i, name := range rec.Fields {
		if _, ok := t.values[name]; ok {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		sv := rec.Values[i]
		if sv.Array != nil {
			t.values[name] = ArrayValue(sv.Array)
		} else {
			t.values[name] = OpaqueValue(sv.Opaque)
		}
	}
	for _, name := range coreFields {
		if _, ok := t.values[name]; !ok {
			return nil, fmt.Errorf("missing core field %q", name)
		}
	}
	return t, nil
}

// Save writes a snapshot to path, creating or truncating it.
func (r *Replay) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("experience: save: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := r.WriteTo(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("experience: save: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("experience: save: %w", err)
	}
	return nil
}

// Load replaces the buffer contents with the snapshot at path.
func (r *Replay) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("experience: load: %w", err)
	}
	defer f.Close()
	if _, err := r.ReadFrom(bufio.NewReader(f)); err != nil {
		return err
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
