package relay

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"testing"
)

// unitReader returns one scripted unit per Read call, then err.
type unitReader struct {
	units [][]byte
	err   error
}

func (r *unitReader) Read(b []byte) (int, error) {
	if len(r.units) == 0 {
		return 0, r.err
	}
	n := copy(b, r.units[0])
	r.units = r.units[1:]
	return n, nil
}

// unitWriter records each Write call as one unit.
type unitWriter struct {
	units [][]byte
	short int
	err   error
}

func (w *unitWriter) Write(b []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.units = append(w.units, bytes.Clone(b))
	return len(b) - w.short, nil
}

func TestRelayForwardsUnitsVerbatim(t *testing.T) {
	units := [][]byte{[]byte("foo"), {}, []byte("quux")}
	r := &unitReader{units: slices.Clone(units), err: io.EOF}
	w := &unitWriter{}

	var seen []int
	traffic, err := Relay(w, r, make([]byte, MaxUnitSize), func(n int) { seen = append(seen, n) })
	if err != nil {
		t.Fatalf("Relay failed: %v", err)
	}
	if traffic.Bytes != 7 {
		t.Errorf("traffic.Bytes = %d, want 7", traffic.Bytes)
	}
	if traffic.Units != 3 {
		t.Errorf("traffic.Units = %d, want 3", traffic.Units)
	}
	if len(w.units) != len(units) {
		t.Fatalf("got %d units, want %d", len(w.units), len(units))
	}
	for i := range units {
		if !bytes.Equal(w.units[i], units[i]) {
			t.Errorf("w.units[%d] = %q, want %q", i, w.units[i], units[i])
		}
	}
	if want := []int{3, 0, 4}; !slices.Equal(seen, want) {
		t.Errorf("onUnit saw %v, want %v", seen, want)
	}
}

func TestRelayShortWrite(t *testing.T) {
	r := &unitReader{units: [][]byte{[]byte("hello")}, err: io.EOF}
	w := &unitWriter{short: 1}

	_, err := Relay(w, r, make([]byte, MaxUnitSize), nil)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("Relay() error = %v, want %v", err, io.ErrShortWrite)
	}
	var swErr *ShortWriteError
	if !errors.As(err, &swErr) {
		t.Fatalf("Relay() error = %v, want *ShortWriteError", err)
	}
	if swErr.Read != 5 || swErr.Written != 4 {
		t.Errorf("swErr = %+v, want Read 5, Written 4", swErr)
	}
}

func TestRelayErrors(t *testing.T) {
	errRead := errors.New("read failed")
	errWrite := errors.New("write failed")

	traffic, err := Relay(&unitWriter{}, &unitReader{units: [][]byte{[]byte("a")}, err: errRead}, make([]byte, 16), nil)
	if err != errRead {
		t.Errorf("Relay() error = %v, want %v", err, errRead)
	}
	if traffic.Units != 1 {
		t.Errorf("traffic.Units = %d, want 1", traffic.Units)
	}

	if _, err = Relay(&unitWriter{err: errWrite}, &unitReader{units: [][]byte{[]byte("a")}, err: io.EOF}, make([]byte, 16), nil); err != errWrite {
		t.Errorf("Relay() error = %v, want %v", err, errWrite)
	}
}
