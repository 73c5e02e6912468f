package bundle

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"tlj-scene-extractor/internal/binreader"
)

const boneNameSize = 0x28

// MeshHeader is the fixed 88-byte record at the start of a mesh. Pos* fields
// are relative to the bundle zero origin.
type MeshHeader struct {
	PosName      uint32
	Rescale      float32
	Center       mgl32.Vec3
	Bound        mgl32.Vec3
	Zero1        [6]uint32
	NumBones     int32
	PosBoneNames uint32
	PosBoneData  uint32
	NumTextures  int32
	PosTextures  uint32
	Zero2        uint32
	Zero3        uint32
	NumParts     int32
}

func (h *MeshHeader) read(r *binreader.Reader) {
	h.PosName = r.ReadU32()
	h.Rescale = r.ReadF32()
	h.Center = mgl32.Vec3{r.ReadF32(), r.ReadF32(), r.ReadF32()}
	h.Bound = mgl32.Vec3{r.ReadF32(), r.ReadF32(), r.ReadF32()}
	for i := range h.Zero1 {
		h.Zero1[i] = r.ReadU32()
	}
	h.NumBones = r.ReadI32()
	h.PosBoneNames = r.ReadU32()
	h.PosBoneData = r.ReadU32()
	h.NumTextures = r.ReadI32()
	h.PosTextures = r.ReadU32()
	h.Zero2 = r.ReadU32()
	h.Zero3 = r.ReadU32()
	h.NumParts = r.ReadI32()
}

// PartHeader is the fixed record at the start of a mesh part. Several fields
// have no known meaning and are kept under their positional names.
type PartHeader struct {
	CFArray        [18]uint32
	NumMagic       int32
	PosMagic       uint32
	FormatIdx      int32
	Bitcode        int32
	Usage          int32
	Val5_3         int32
	Val5_4         int32
	NumIdx         int32
	PosIdx         uint32
	NumBoneUsage   int32
	PosBoneUsage   uint32
	NumBoneStages  int32
	PosBoneVerts   uint32
	PosBoneIdx     uint32
	PosBoneAssign  uint32
	LenXTable      int32
	PosXTable      uint32
	Strange        [4]uint32
	NumTax1        int32
	PosTax1        uint32
	NumTax2        int32
	PosTax2        uint32
	NumTax3        int32
	PosTax3        uint32
	NumTexStages   int32
	PosStageVerts  uint32
	PosStageIdx    uint32
	PosStageC      uint32
	PosStageAssign uint32
	NumAnim        int32
	PosAnim        uint32
	NumVertices    int32
	PosBonus       [10]uint32
	NumIdxBonus    int32
	PosIdxBonus    uint32
	NumTextures    int32
}

func (h *PartHeader) read(r *binreader.Reader) {
	for i := range h.CFArray {
		h.CFArray[i] = r.ReadU32()
	}
	h.NumMagic = r.ReadI32()
	h.PosMagic = r.ReadU32()
	h.FormatIdx = r.ReadI32()
	h.Bitcode = r.ReadI32()
	h.Usage = r.ReadI32()
	h.Val5_3 = r.ReadI32()
	h.Val5_4 = r.ReadI32()
	h.NumIdx = r.ReadI32()
	h.PosIdx = r.ReadU32()
	h.NumBoneUsage = r.ReadI32()
	h.PosBoneUsage = r.ReadU32()
	h.NumBoneStages = r.ReadI32()
	h.PosBoneVerts = r.ReadU32()
	h.PosBoneIdx = r.ReadU32()
	h.PosBoneAssign = r.ReadU32()
	h.LenXTable = r.ReadI32()
	h.PosXTable = r.ReadU32()
	for i := range h.Strange {
		h.Strange[i] = r.ReadU32()
	}
	h.NumTax1 = r.ReadI32()
	h.PosTax1 = r.ReadU32()
	h.NumTax2 = r.ReadI32()
	h.PosTax2 = r.ReadU32()
	h.NumTax3 = r.ReadI32()
	h.PosTax3 = r.ReadU32()
	h.NumTexStages = r.ReadI32()
	h.PosStageVerts = r.ReadU32()
	h.PosStageIdx = r.ReadU32()
	h.PosStageC = r.ReadU32()
	h.PosStageAssign = r.ReadU32()
	h.NumAnim = r.ReadI32()
	h.PosAnim = r.ReadU32()
	h.NumVertices = r.ReadI32()
	for i := range h.PosBonus {
		h.PosBonus[i] = r.ReadU32()
	}
	h.NumIdxBonus = r.ReadI32()
	h.PosIdxBonus = r.ReadU32()
	h.NumTextures = r.ReadI32()
}

// PartTexInfo maps each texture stage of one texture slot to an entry of the
// mesh texture table. -1 means the slot is empty for that stage.
type PartTexInfo struct {
	CF1, CF2 uint32
	PosTex   uint32
	Unknown  int32
	TexIdx   []int32
}

func (t *PartTexInfo) read(r *binreader.Reader, numTexStages int32) {
	t.CF1 = r.ReadU32()
	t.CF2 = r.ReadU32()
	t.PosTex = r.ReadU32()
	t.Unknown = r.ReadI32()
	t.TexIdx = r.ReadI32Table(numTexStages, t.PosTex)
}

// MeshPartInfo is one decoded mesh part. Tables with a zero offset in the
// header are absent and left nil where the format allows it.
type MeshPartInfo struct {
	Header        PartHeader
	PosTextures   []uint32
	Magic         []uint32
	Indices       []byte // raw little-endian uint16
	BoneUsage     []uint16
	BoneVertices  []uint16
	BoneIndices   []uint16
	BoneAssign    []uint16
	Tax1          []uint32
	Tax2          []uint32
	Tax3          []uint32
	XTable        []byte
	StageVertices []int32
	StageIndices  []int32
	StageC        []int32
	StageAssign   []int32
	AnimKeys      []float32
	Bonus1        []uint32
	Bonus2        []uint32
	IdxBonus      []uint32
	Tex           []PartTexInfo
}

func (p *MeshPartInfo) read(r *binreader.Reader) error {
	h := &p.Header
	h.read(r)
	p.PosTextures = r.ReadU32Table(h.NumTextures, 0)
	p.Magic = r.ReadU32Table(h.NumMagic, h.PosMagic)

	r.AssertAt(h.PosIdx)
	p.Indices = r.ReadBytes(int(h.NumIdx) * 2)

	p.BoneUsage = r.ReadU16Table(h.NumBoneUsage, h.PosBoneUsage)
	p.BoneVertices = r.ReadU16Table(h.NumBoneStages, h.PosBoneVerts)
	p.BoneIndices = r.ReadU16Table(h.NumBoneStages, h.PosBoneIdx)
	if h.PosBoneAssign != 0 {
		p.BoneAssign = r.ReadU16Table(h.NumBoneStages, h.PosBoneAssign)
	}
	p.Tax1 = r.ReadU32Table(h.NumTax1, h.PosTax1)
	p.Tax2 = r.ReadU32Table(h.NumTax2, h.PosTax2)
	p.Tax3 = r.ReadU32Table(h.NumTax3, h.PosTax3)

	r.AssertAt(h.PosXTable)
	p.XTable = r.ReadBytes(int(h.LenXTable))

	p.StageVertices = r.ReadI32Table(h.NumTexStages, h.PosStageVerts)
	p.StageIndices = r.ReadI32Table(h.NumTexStages, h.PosStageIdx)
	if h.PosStageC != 0 {
		p.StageC = r.ReadI32Table(h.NumTexStages, h.PosStageC)
	}
	p.StageAssign = r.ReadI32Table(h.NumTexStages, h.PosStageAssign)
	p.AnimKeys = r.ReadF32Table(h.NumAnim, h.PosAnim)
	if h.Usage&1 != 0 {
		p.Bonus1 = r.ReadU32Table(3*h.NumVertices, h.PosBonus[0])
	}
	if h.Usage&2 != 0 {
		p.Bonus2 = r.ReadU32Table(3*h.NumVertices, h.PosBonus[1])
	}
	if h.NumIdxBonus != 0 && r.At(h.PosIdxBonus) {
		p.IdxBonus = r.ReadU32Table(h.NumIdxBonus, 0)
	}

	if err := r.Err(); err != nil {
		return err
	}
	if h.NumTextures < 0 || int64(h.NumTextures)*16 > int64(r.Remaining()) {
		return fmt.Errorf("%w: %d texture slots", binreader.ErrOutOfRange, h.NumTextures)
	}
	p.Tex = make([]PartTexInfo, h.NumTextures)
	for i := range p.Tex {
		p.Tex[i].read(r, h.NumTexStages)
	}
	return r.Err()
}

// MeshInfo is a fully decoded mesh record.
type MeshInfo struct {
	Header    MeshHeader
	Name      string
	PosParts  []uint32
	BoneNames []string
	BoneData  []float32 // 7 floats per bone
	TexIdx    []int32   // indices into the bundle texture table
	Parts     []MeshPartInfo
}

// ReadMeshInfo decodes a mesh record at the cursor. The reader's zero origin
// must be the bundle zero origin.
func ReadMeshInfo(r *binreader.Reader) (*MeshInfo, error) {
	info := &MeshInfo{}
	h := &info.Header
	h.read(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("bundle: mesh header: %w", err)
	}
	if h.NumParts == 0 {
		return info, nil
	}

	info.PosParts = r.ReadU32Table(h.NumParts, 0)
	r.AssertAt(h.PosName)
	info.Name = r.ReadCString()

	if h.NumBones < 0 || int64(h.NumBones)*boneNameSize > int64(r.Remaining()) {
		return nil, fmt.Errorf("bundle: mesh %q: %w: %d bones", info.Name, binreader.ErrOutOfRange, h.NumBones)
	}
	info.BoneNames = make([]string, h.NumBones)
	for i := range info.BoneNames {
		info.BoneNames[i] = r.ReadFixedString(boneNameSize)
	}
	info.BoneData = r.ReadF32Table(7*h.NumBones, h.PosBoneData)
	info.TexIdx = r.ReadI32Table(h.NumTextures, h.PosTextures)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("bundle: mesh %q: %w", info.Name, err)
	}

	info.Parts = make([]MeshPartInfo, len(info.PosParts))
	for i := range info.Parts {
		if err := info.Parts[i].read(r); err != nil {
			return nil, fmt.Errorf("bundle: mesh %q part %d: %w", info.Name, i, err)
		}
	}
	return info, nil
}
