package pak

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEntry is one on-disk directory record for buildArchive.
type testEntry struct {
	Slot     int
	Link     int32
	RawDepth int32 // value stored on disk
	Partial  string
	Data     []byte // nil for branch entries
}

// buildArchive encodes a complete archive with the given trie slots.
func buildArchive(tb testing.TB, slots int, entries []testEntry, aux []int32) []byte {
	tb.Helper()

	var names []byte
	refs := make(map[int]int32)
	for _, e := range entries {
		refs[e.Slot] = int32(len(names))
		for i := 0; i < len(e.Partial); i++ {
			c := encodeChar(e.Partial[i])
			require.GreaterOrEqual(tb, c, 0, "partial %q", e.Partial)
			names = append(names, byte(c))
		}
		names = append(names, 0)
	}
	emptyRef := int32(len(names))
	names = append(names, 0)

	dirSize := headerSize + slots*entrySize + len(names) + len(aux)*4
	var payload []byte
	offsets := make(map[int]uint32)
	for _, e := range entries {
		if e.Data != nil {
			offsets[e.Slot] = uint32(dirSize + len(payload))
			payload = append(payload, e.Data...)
		}
	}

	buf := []byte(Magic)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(slots))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(aux)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(names)))
	bySlot := make(map[int]testEntry)
	for _, e := range entries {
		bySlot[e.Slot] = e
	}
	for s := 0; s < slots; s++ {
		e, ok := bySlot[s]
		if !ok {
			buf = binary.LittleEndian.AppendUint32(buf, 0)
			buf = binary.LittleEndian.AppendUint32(buf, 0)
			buf = binary.LittleEndian.AppendUint32(buf, 0)
			buf = binary.LittleEndian.AppendUint32(buf, 0)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(emptyRef))
			continue
		}
		buf = binary.LittleEndian.AppendUint32(buf, offsets[s])
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Data)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Link))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.RawDepth))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(refs[s]))
	}
	buf = append(buf, names...)
	for _, a := range aux {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(a))
	}
	require.Len(tb, buf, dirSize)
	return append(buf, payload...)
}

// sampleArchive holds "abc", "d\e.x" and "d\f_1".
func sampleArchive(tb testing.TB) []byte {
	tb.Helper()
	const base = 44
	return buildArchive(tb, base+44, []testEntry{
		{Slot: encodeChar('a'), RawDepth: 3, Partial: "bc", Data: []byte("first member")},
		{Slot: encodeChar('d'), Link: base, RawDepth: 1, Partial: `\`},
		{Slot: base + encodeChar('e'), RawDepth: 5, Partial: ".x", Data: []byte("second")},
		{Slot: base + encodeChar('f'), RawDepth: 5, Partial: "_1", Data: []byte("third!")},
	}, []int32{12, 6})
}

func writeArchive(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	p := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(p, data, 0644))
	return p
}

func TestFindConstructedIndex(t *testing.T) {
	idx := &Index{Entries: []Entry{
		{},
		{Offset: 100, Size: 10, Partial: "bc", Depth: 3},
	}}

	e, ok := idx.Find("ABC")
	require.True(t, ok)
	assert.Equal(t, uint32(100), e.Offset)
	assert.Equal(t, uint32(110), e.Offset+uint32(e.Size))

	for _, miss := range []string{"abcd", "ab", "#bc", "", "b"} {
		_, ok := idx.Find(miss)
		assert.False(t, ok, miss)
	}
}

func TestFindRejectsDepthMismatch(t *testing.T) {
	idx := &Index{Entries: []Entry{
		{},
		{Offset: 100, Size: 10, Partial: "bc", Depth: 4},
	}}
	_, ok := idx.Find("abc")
	assert.False(t, ok)
}

func TestParseAndFindNested(t *testing.T) {
	idx, err := Parse(sampleArchive(t))
	require.NoError(t, err)
	assert.Len(t, idx.Entries, 88)
	assert.Equal(t, []int32{12, 6}, idx.Lengths)

	branch := idx.Entries[encodeChar('d')]
	assert.False(t, branch.IsFile())
	assert.Equal(t, int32(2), branch.Depth)
	assert.Equal(t, `\`, branch.Partial)

	e, ok := idx.Find("d/E.x")
	require.True(t, ok)
	assert.Equal(t, int32(6), e.Size)

	e, ok = idx.Find(`d\f_1`)
	require.True(t, ok)
	assert.Equal(t, int32(6), e.Size)

	_, ok = idx.Find("d")
	assert.False(t, ok, "a branch is not a file")
	_, ok = idx.Find("d/g")
	assert.False(t, ok)
}

func TestParseBadMagic(t *testing.T) {
	data := sampleArchive(t)
	data[0] = 'x'
	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = Parse([]byte("tlj"))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParseTruncated(t *testing.T) {
	data := sampleArchive(t)
	_, err := Parse(data[:headerSize+10])
	assert.Error(t, err)
}

func TestDecodeReservedCodes(t *testing.T) {
	assert.Equal(t, byte('?'), decodeChar(28))
	assert.Equal(t, byte('?'), decodeChar(29))
	assert.Equal(t, byte('?'), decodeChar(44))
	assert.Equal(t, byte('9'), decodeChar(43))
	assert.Equal(t, 28, encodeChar('?'))
	assert.Equal(t, -1, encodeChar('#'))
}

func TestOpenReadsDirectoryOnly(t *testing.T) {
	dir := t.TempDir()
	p := writeArchive(t, dir, "data.pak", sampleArchive(t))

	idx, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, "data", idx.Name)
	_, ok := idx.Find("abc")
	assert.True(t, ok)
}

func countingPackage(t *testing.T, outDir string, idx ...*Index) (*Package, *atomic.Int32) {
	t.Helper()
	pkg := New(outDir, idx)
	var calls atomic.Int32
	inner := pkg.copyMember
	pkg.copyMember = func(i *Index, e Entry, dst string) (Record, error) {
		calls.Add(1)
		return inner(i, e, dst)
	}
	return pkg, &calls
}

func TestTryExtractIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(writeArchive(t, dir, "data.pak", sampleArchive(t)))
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	pkg, calls := countingPackage(t, out, idx)

	found, err := pkg.TryExtract("d/e.x")
	require.NoError(t, err)
	require.True(t, found)
	first, err := os.ReadFile(pkg.OutputPath("d/e.x"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(first))

	found, err = pkg.TryExtract(`d\e.x`)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int32(1), calls.Load())

	second, err := os.ReadFile(pkg.OutputPath("d/e.x"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	recs := pkg.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, digest.FromBytes([]byte("second")), recs[0].Digest)
}

func TestTryExtractMissing(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(writeArchive(t, dir, "data.pak", sampleArchive(t)))
	require.NoError(t, err)

	pkg, calls := countingPackage(t, filepath.Join(dir, "out"), idx)
	found, err := pkg.TryExtract("no/such/file.bin")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, calls.Load())
	assert.False(t, pkg.Extracted("no/such/file.bin"))
}

func TestTryExtractSearchesEveryArchive(t *testing.T) {
	dir := t.TempDir()
	other := buildArchive(t, 44, []testEntry{
		{Slot: encodeChar('z'), RawDepth: 1, Data: []byte("z")},
	}, nil)
	a, err := Open(writeArchive(t, dir, "a.pak", sampleArchive(t)))
	require.NoError(t, err)
	b, err := Open(writeArchive(t, dir, "b.pak", other))
	require.NoError(t, err)

	pkg := New(filepath.Join(dir, "out"), []*Index{a, b})
	data, found, err := pkg.ReadFile("z")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "z", string(data))

	idx, _, ok := pkg.Lookup("z")
	require.True(t, ok)
	assert.Equal(t, "b", idx.Name)
}

func TestConcurrentTryExtractCopiesOnce(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(writeArchive(t, dir, "data.pak", sampleArchive(t)))
	require.NoError(t, err)
	pkg, calls := countingPackage(t, filepath.Join(dir, "out"), idx)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := pkg.TryExtract("abc")
			assert.NoError(t, err)
			assert.True(t, found)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenDir(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "b.pak", sampleArchive(t))
	writeArchive(t, dir, "a.pak", sampleArchive(t))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0644))

	pkg, err := OpenDir(dir, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, pkg.Indices(), 2)
	assert.Equal(t, "a", pkg.Indices()[0].Name)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(writeArchive(t, dir, "data.pak", sampleArchive(t)))
	require.NoError(t, err)
	out := filepath.Join(dir, "out")
	manifest := filepath.Join(dir, "state", "manifest.json")

	pkg := New(out, []*Index{idx})
	for _, p := range []string{"abc", "d/f_1"} {
		found, err := pkg.TryExtract(p)
		require.NoError(t, err)
		require.True(t, found)
	}
	require.NoError(t, pkg.SaveManifest(manifest))

	// drop one output so it must be extracted again
	require.NoError(t, os.Remove(pkg.OutputPath("abc")))

	again, calls := countingPackage(t, out, idx)
	n, err := again.LoadManifest(manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, again.Extracted("d/f_1"))

	for _, p := range []string{"abc", "d/f_1"} {
		found, err := again.TryExtract(p)
		require.NoError(t, err)
		require.True(t, found)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadMissingManifest(t *testing.T) {
	pkg := New(t.TempDir(), nil)
	n, err := pkg.LoadManifest(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutputPathStaysInsideOutDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	pkg := New(out, nil)

	tests := []struct {
		logical string
		want    string
	}{
		{"data/textures/a.png", "data/textures/a.png"},
		{`data\textures\a.png`, "data/textures/a.png"},
		{"../../etc/passwd", "etc/passwd"},
		{`..\..\boot.ini`, "boot.ini"},
		{"/abs/path.bin", "abs/path.bin"},
		{"a/../../../b", "b"},
	}
	for _, tt := range tests {
		got := pkg.OutputPath(tt.logical)
		assert.Equal(t, filepath.Join(out, filepath.FromSlash(tt.want)), got, tt.logical)
		rel, err := filepath.Rel(out, got)
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(rel, ".."), tt.logical)
	}
}

func TestLoadManifestIgnoresEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret"), []byte("secret"), 0644))
	manifest := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"files": [{"path": "../secret", "size": 6}]}`), 0644))

	pkg := New(out, nil)
	n, err := pkg.LoadManifest(manifest)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, pkg.Extracted("../secret"))
}
