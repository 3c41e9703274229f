package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mikey/receipt-forensics/internal/core"
)

type asciiTag struct {
	id  uint16
	val string
}

// buildTIFF lays out a little-endian TIFF with IFD0 tags and an optional
// Exif sub-IFD holding DateTimeOriginal
func buildTIFF(ifd0 []asciiTag, original string) []byte {
	le := binary.LittleEndian
	var buf bytes.Buffer
	buf.WriteString("II")
	_ = binary.Write(&buf, le, uint16(42))
	_ = binary.Write(&buf, le, uint32(8))

	type entry struct {
		id    uint16
		typ   uint16
		count uint32
		data  []byte
	}
	entries := make([]entry, 0, len(ifd0)+1)
	for _, t := range ifd0 {
		entries = append(entries, entry{id: t.id, typ: 2, count: uint32(len(t.val) + 1), data: append([]byte(t.val), 0)})
	}
	if original != "" {
		entries = append(entries, entry{id: 0x8769, typ: 4, count: 1})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	ifdSize := 2 + 12*len(entries) + 4
	dataOff := uint32(8 + ifdSize)
	var data bytes.Buffer
	var exifPtrPos int

	_ = binary.Write(&buf, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&buf, le, e.id)
		_ = binary.Write(&buf, le, e.typ)
		_ = binary.Write(&buf, le, e.count)
		switch {
		case e.id == 0x8769:
			exifPtrPos = buf.Len()
			_ = binary.Write(&buf, le, uint32(0))
		case len(e.data) <= 4:
			v := make([]byte, 4)
			copy(v, e.data)
			buf.Write(v)
		default:
			_ = binary.Write(&buf, le, dataOff+uint32(data.Len()))
			data.Write(e.data)
			if data.Len()%2 == 1 {
				data.WriteByte(0)
			}
		}
	}
	_ = binary.Write(&buf, le, uint32(0))
	buf.Write(data.Bytes())

	out := buf.Bytes()
	if original == "" {
		return out
	}

	subOff := uint32(len(out))
	le.PutUint32(out[exifPtrPos:], subOff)
	var sub bytes.Buffer
	val := append([]byte(original), 0)
	_ = binary.Write(&sub, le, uint16(1))
	_ = binary.Write(&sub, le, uint16(0x9003))
	_ = binary.Write(&sub, le, uint16(2))
	_ = binary.Write(&sub, le, uint32(len(val)))
	_ = binary.Write(&sub, le, subOff+uint32(2+12+4))
	_ = binary.Write(&sub, le, uint32(0))
	sub.Write(val)
	return append(out, sub.Bytes()...)
}

// withEXIF returns a small JPEG with an APP1 Exif segment
func withEXIF(t *testing.T, tiff []byte) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetGray(0, 0, color.Gray{Y: 10})
	var enc bytes.Buffer
	require.NoError(t, jpeg.Encode(&enc, img, nil))

	payload := append([]byte("Exif\x00\x00"), tiff...)
	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(enc.Bytes()[2:])
	return out.Bytes()
}

type StageTestSuite struct {
	suite.Suite
	stage *Stage
}

func (s *StageTestSuite) SetupTest() {
	s.stage = NewStage([]string{"photoshop", "gimp", " Canva ", ""}, nil)
}

func (s *StageTestSuite) analyze(data []byte) *core.MetadataResult {
	res, err := s.stage.Analyze(context.Background(), core.ImageInput{ReceiptID: "r1", Data: data})
	s.Require().NoError(err)
	s.Require().NotNil(res)
	return res
}

func (s *StageTestSuite) TestNoEXIF() {
	var enc bytes.Buffer
	s.Require().NoError(jpeg.Encode(&enc, image.NewGray(image.Rect(0, 0, 4, 4)), nil))

	res := s.analyze(enc.Bytes())
	s.False(res.HasEXIF)
	s.Equal([]string{"No EXIF metadata (may be stripped)"}, res.Flags)
	s.Equal(20.0, res.RiskScore)
}

func (s *StageTestSuite) TestEditedAndModified() {
	tiff := buildTIFF([]asciiTag{
		{id: 0x0131, val: "Adobe Photoshop 24.0"},
		{id: 0x0132, val: "2024:03:19 09:00:00"},
	}, "2024:03:18 14:22:05")

	res := s.analyze(withEXIF(s.T(), tiff))
	s.True(res.HasEXIF)
	s.Equal("Adobe Photoshop 24.0", res.Software)
	s.Equal([]string{"Edited with Adobe Photoshop 24.0", "Modified after capture"}, res.Flags)
	s.Equal(40.0, res.RiskScore)
}

func (s *StageTestSuite) TestCleanCamera() {
	tiff := buildTIFF([]asciiTag{
		{id: 0x0131, val: "HDR+ 1.0.5"},
		{id: 0x0132, val: "2024:03:18 14:22:05"},
	}, "2024:03:18 14:22:05")

	res := s.analyze(withEXIF(s.T(), tiff))
	s.True(res.HasEXIF)
	s.Empty(res.Flags)
	s.Zero(res.RiskScore)
}

func (s *StageTestSuite) TestCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.stage.Analyze(ctx, core.ImageInput{})
	s.ErrorIs(err, context.Canceled)
}

func TestStageTestSuite(t *testing.T) {
	suite.Run(t, new(StageTestSuite))
}

func TestIsEditor(t *testing.T) {
	s := NewStage([]string{"gimp"}, nil)
	assert.True(t, s.isEditor("GIMP 2.10"))
	assert.False(t, s.isEditor("Camera"))
}
