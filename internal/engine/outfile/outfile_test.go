package outfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/hydraulic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(t int64, scale float64) *hydraulic.Snapshot {
	return &hydraulic.Snapshot{
		Time:       t,
		Demand:     []float64{-1.5 * scale, 1.5 * scale},
		FullDemand: []float64{0, 1.5 * scale},
		Deficit:    []float64{0, 0.25},
		Head:       []float64{100, 99 - scale},
		Volume:     []float64{0, 0},
		Flow:       []float64{1.5 * scale},
		Setting:    []float64{-1e10},
		Status:     []hydraulic.Status{hydraulic.Open},
	}
}

func TestHydFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.hyd")
	w, err := CreateHyd(path, 2, 1)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(snapshot(int64(i)*3600, float64(i+1))))
	}
	assert.Equal(t, 3, w.Count())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")

	snaps, err := ReadAllHyd(path, 2, 1)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i, s := range snaps {
		assert.Equal(t, snapshot(int64(i)*3600, float64(i+1)), s)
	}
}

func TestHydFileRejectsOtherNetworks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.hyd")
	w, err := CreateHyd(path, 2, 1)
	require.NoError(t, err)
	require.NoError(t, w.Write(snapshot(0, 1)))
	require.NoError(t, w.Close())

	_, err = OpenHyd(path, 3, 1)
	assert.Equal(t, errors.ErrHydFileMismatch, errors.CodeOf(err))

	bad := filepath.Join(t.TempDir(), "bad.hyd")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not hydraulics"), 0o644))
	_, err = OpenHyd(bad, 2, 1)
	assert.Equal(t, errors.ErrReadHydFile, errors.CodeOf(err))

	_, err = OpenHyd(filepath.Join(t.TempDir(), "missing.hyd"), 2, 1)
	assert.Equal(t, errors.ErrOpenHydFile, errors.CodeOf(err))

	w, err = CreateHyd(path, 2, 1)
	require.NoError(t, err)
	err = w.Write(&hydraulic.Snapshot{Head: []float64{1}})
	assert.Equal(t, errors.ErrHydFileMismatch, errors.CodeOf(err))
	require.NoError(t, w.Close())
}

func TestHydFileDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.hyd")
	w, err := CreateHyd(path, 2, 1)
	require.NoError(t, err)
	require.NoError(t, w.Write(snapshot(0, 1)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-6] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := OpenHyd(path, 2, 1)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.Equal(t, errors.ErrReadHydFile, errors.CodeOf(err))
}

func testProlog() *Prolog {
	return &Prolog{
		Nodes: 3, Tanks: 1, Links: 2, Pumps: 1,
		Quality: 1, FlowUnits: 1, ReportStep: 3600, Duration: 7200,
		Title:     [3]string{"two pipes", "", ""},
		InputFile: "net.inp", ChemName: "Chlorine", ChemUnits: "mg/L",
		NodeIDs:   []string{"R", "J", "T"},
		LinkIDs:   []string{"PU", "P"},
		LinkFrom:  []int32{1, 2},
		LinkTo:    []int32{2, 3},
		LinkKind:  []int32{2, 1},
		TankNodes: []int32{3},
		TankAreas: []float32{78.5},
		Elevation: []float32{0, 10, 20},
		Length:    []float32{0, 1000},
		Diameter:  []float32{0, 12},
	}
}

func TestResultsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.out")
	pro := testProlog()
	w, err := Create(path, pro)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		p := NewPeriod(3, 2)
		p.NodeHead[1] = float32(100 + i)
		p.LinkFlow[1] = float32(i) / 2
		p.LinkStatus[1] = 3
		require.NoError(t, w.WritePeriod(p))
	}
	assert.Equal(t, 3, w.Periods())
	energy := []PumpEnergy{{Link: 1, Utilization: 100, Efficiency: 75, AverageKW: 12.5, PeakKW: 13}}
	require.NoError(t, w.Finish(energy, 0, 6))

	res, err := Open(path)
	require.NoError(t, err)
	defer res.Close()
	assert.Equal(t, *pro, res.Prolog)
	assert.Equal(t, energy, res.Energy)
	assert.Equal(t, 3, res.Periods)
	assert.Equal(t, int32(6), res.Warning)
	assert.Equal(t, int64(7200), res.Time(2))

	p, err := res.Period(2)
	require.NoError(t, err)
	assert.Equal(t, float32(102), p.NodeHead[1])
	assert.Equal(t, float32(1), p.LinkFlow[1])
	assert.Equal(t, float32(3), p.LinkStatus[1])

	_, err = res.Period(3)
	assert.Equal(t, errors.ErrNoResults, errors.CodeOf(err))
}

func TestResultsFileValidation(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(filepath.Join(dir, "a.out"), testProlog())
	require.NoError(t, err)
	err = w.WritePeriod(NewPeriod(2, 2))
	assert.Equal(t, errors.ErrSaveResults, errors.CodeOf(err))
	require.NoError(t, w.Finish(make([]PumpEnergy, 1), 0, 0))

	// a run that never wrote its epilog
	unfinished := filepath.Join(dir, "b.out")
	w, err = Create(unfinished, testProlog())
	require.NoError(t, err)
	require.NoError(t, w.WritePeriod(NewPeriod(3, 2)))
	require.NoError(t, w.Abort())
	_, err = Open(unfinished)
	assert.True(t, errors.CodeOf(err) == errors.ErrOutInvalid || errors.CodeOf(err) == errors.ErrOutRunFailed, "got %v", err)

	junk := filepath.Join(dir, "c.out")
	require.NoError(t, os.WriteFile(junk, []byte("nope"), 0o644))
	_, err = Open(junk)
	assert.Equal(t, errors.ErrOutInvalid, errors.CodeOf(err))

	_, err = Open(filepath.Join(dir, "missing.out"))
	assert.Equal(t, errors.ErrOpenOutput, errors.CodeOf(err))
}

func TestHydReaderEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.hyd")
	w, err := CreateHyd(path, 1, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	r, err := OpenHyd(path, 1, 0)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
