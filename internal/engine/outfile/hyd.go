// Package outfile reads and writes the engine's binary files: the
// hydraulics file that carries solved snapshots from a hydraulic run to a
// later quality run, and the binary results file.
package outfile

import (
	"bufio"
	"encoding/binary"
	stderrors "errors"
	"hash/crc32"
	"io"
	"math"
	"os"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/hydraulic"

	"github.com/golang/snappy"
)

const (
	hydMagic   uint32 = 0x41514859
	hydVersion uint32 = 1
)

// HydWriter appends hydraulic snapshots to a hydraulics file. Each record is
// [len:4][snappy block:len][crc32:4], little endian.
type HydWriter struct {
	f      *os.File
	w      *bufio.Writer
	nodes  int
	links  int
	buf    []byte
	count  int
	closed bool
}

// CreateHyd creates (or truncates) a hydraulics file for a network of the
// given size.
func CreateHyd(path string, nodes, links int) (*HydWriter, error) {
	const op = "outfile.CreateHyd"
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrOpenHydFile, "%v", err)
	}
	w := &HydWriter{f: f, w: bufio.NewWriter(f), nodes: nodes, links: links}
	hdr := []uint32{hydMagic, hydVersion, uint32(nodes), uint32(links)}
	if err := binary.Write(w.w, binary.LittleEndian, hdr); err != nil {
		f.Close()
		return nil, errors.Enginef(op, errors.ErrOpenHydFile, "%v", err)
	}
	return w, nil
}

// Write appends one snapshot.
func (w *HydWriter) Write(s *hydraulic.Snapshot) error {
	const op = "outfile.HydWriter.Write"
	if !sized(w.nodes, s.Demand, s.FullDemand, s.Deficit, s.Head, s.Volume) ||
		!sized(w.links, s.Flow, s.Setting) || len(s.Status) != w.links {
		return errors.Enginef(op, errors.ErrHydFileMismatch, "snapshot has %d nodes, %d links", len(s.Head), len(s.Flow))
	}
	raw := encodeSnapshot(w.buf[:0], s)
	w.buf = raw
	block := snappy.Encode(nil, raw)

	var head [4]byte
	binary.LittleEndian.PutUint32(head[:], uint32(len(block)))
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], crc32.ChecksumIEEE(block))
	for _, b := range [][]byte{head[:], block, tail[:]} {
		if _, err := w.w.Write(b); err != nil {
			return errors.Enginef(op, errors.ErrOpenHydFile, "%v", err)
		}
	}
	w.count++
	return nil
}

func sized(n int, cols ...[]float64) bool {
	for _, c := range cols {
		if len(c) != n {
			return false
		}
	}
	return true
}

// Count is the number of snapshots written.
func (w *HydWriter) Count() int { return w.count }

func (w *HydWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return errors.Enginef("outfile.HydWriter.Close", errors.ErrOpenHydFile, "%v", err)
	}
	return w.f.Close()
}

// HydReader replays snapshots from a hydraulics file in order.
type HydReader struct {
	f     *os.File
	r     *bufio.Reader
	nodes int
	links int
}

// OpenHyd opens a hydraulics file and checks it was written for a network
// with the given node and link counts.
func OpenHyd(path string, nodes, links int) (*HydReader, error) {
	const op = "outfile.OpenHyd"
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrOpenHydFile, "%v", err)
	}
	r := &HydReader{f: f, r: bufio.NewReader(f), nodes: nodes, links: links}
	var hdr [4]uint32
	if err := binary.Read(r.r, binary.LittleEndian, &hdr); err != nil {
		f.Close()
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "header: %v", err)
	}
	if hdr[0] != hydMagic || hdr[1] != hydVersion {
		f.Close()
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "not a hydraulics file")
	}
	if int(hdr[2]) != nodes || int(hdr[3]) != links {
		f.Close()
		return nil, errors.Enginef(op, errors.ErrHydFileMismatch, "file has %d nodes, %d links; network has %d, %d",
			hdr[2], hdr[3], nodes, links)
	}
	return r, nil
}

// Next returns the next snapshot, or io.EOF after the last one.
func (r *HydReader) Next() (*hydraulic.Snapshot, error) {
	const op = "outfile.HydReader.Next"
	var head [4]byte
	if _, err := io.ReadFull(r.r, head[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "%v", err)
	}
	block := make([]byte, binary.LittleEndian.Uint32(head[:]))
	if _, err := io.ReadFull(r.r, block); err != nil {
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "%v", err)
	}
	var tail [4]byte
	if _, err := io.ReadFull(r.r, tail[:]); err != nil {
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "%v", err)
	}
	if crc32.ChecksumIEEE(block) != binary.LittleEndian.Uint32(tail[:]) {
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "checksum mismatch")
	}
	raw, err := snappy.Decode(nil, block)
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "%v", err)
	}
	s, err := decodeSnapshot(raw, r.nodes, r.links)
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrReadHydFile, "%v", err)
	}
	return s, nil
}

func (r *HydReader) Close() error { return r.f.Close() }

// ReadAllHyd loads every snapshot in a hydraulics file.
func ReadAllHyd(path string, nodes, links int) ([]*hydraulic.Snapshot, error) {
	r, err := OpenHyd(path, nodes, links)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []*hydraulic.Snapshot
	for {
		s, err := r.Next()
		if stderrors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

// snapshot layout: time, then per node demand, full demand, deficit, head
// and volume, then per link flow, setting and status.
func encodeSnapshot(b []byte, s *hydraulic.Snapshot) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(s.Time))
	for _, col := range [][]float64{s.Demand, s.FullDemand, s.Deficit, s.Head, s.Volume, s.Flow, s.Setting} {
		for _, v := range col {
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
		}
	}
	for _, st := range s.Status {
		b = append(b, byte(st))
	}
	return b
}

func decodeSnapshot(b []byte, nodes, links int) (*hydraulic.Snapshot, error) {
	want := 8 + 8*(5*nodes+2*links) + links
	if len(b) != want {
		return nil, stderrors.New("record size does not match network")
	}
	s := &hydraulic.Snapshot{Time: int64(binary.LittleEndian.Uint64(b))}
	b = b[8:]
	column := func(n int) []float64 {
		col := make([]float64, n)
		for i := range col {
			col[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
			b = b[8:]
		}
		return col
	}
	s.Demand = column(nodes)
	s.FullDemand = column(nodes)
	s.Deficit = column(nodes)
	s.Head = column(nodes)
	s.Volume = column(nodes)
	s.Flow = column(links)
	s.Setting = column(links)
	s.Status = make([]hydraulic.Status, links)
	for k := range s.Status {
		s.Status[k] = hydraulic.Status(b[k])
	}
	return s, nil
}
