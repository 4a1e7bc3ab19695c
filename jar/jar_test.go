package jar

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/jclass"
)

// emptyClassBytes assembles a minimal, method-less class file.
func emptyClassBytes(name string) []byte {
	var buf bytes.Buffer
	u2 := func(v uint16) { binary.Write(&buf, binary.BigEndian, v) }
	u4 := func(v uint32) { binary.Write(&buf, binary.BigEndian, v) }
	utf8 := func(s string) {
		buf.WriteByte(1)
		u2(uint16(len(s)))
		buf.WriteString(s)
	}

	u4(0xCAFEBABE)
	u2(0)
	u2(52)
	u2(5) // constant pool count
	utf8(name)
	buf.WriteByte(7) // Class -> #1
	u2(1)
	utf8("java/lang/Object")
	buf.WriteByte(7) // Class -> #3
	u2(3)
	u2(0x0021)
	u2(2)
	u2(4)
	u2(0) // interfaces
	u2(0) // fields
	u2(0) // methods
	u2(0) // attributes
	return buf.Bytes()
}

func buildJar(t *testing.T, entries map[string][]byte, order []string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadBytes(t *testing.T) {
	data := buildJar(t, map[string][]byte{
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
		"pkg/A.class":          emptyClassBytes("pkg/A"),
		"pkg/B.class":          emptyClassBytes("pkg/B"),
		"assets/logo.txt":      []byte("logo"),
	}, []string{"META-INF/MANIFEST.MF", "pkg/A.class", "pkg/B.class", "assets/logo.txt"})

	ar, err := ReadBytes(data)
	require.NoError(t, err)

	require.Equal(t, 2, ar.Pool.Size())
	require.NotNil(t, ar.Pool.Get("pkg/A"))
	require.NotNil(t, ar.Pool.Get("pkg/B"))
	// Archive order drives pool order.
	require.Equal(t, "pkg/A", ar.Pool.Classes()[0].Name)

	require.Len(t, ar.Resources, 2)
	require.Equal(t, "META-INF/MANIFEST.MF", ar.Resources[0].Name)
}

func TestReadKeepsBrokenClassAsResource(t *testing.T) {
	data := buildJar(t, map[string][]byte{
		"ok.class":  emptyClassBytes("ok"),
		"bad.class": {0x00, 0x01, 0x02},
	}, []string{"ok.class", "bad.class"})

	ar, err := ReadBytes(data)
	require.NoError(t, err)
	require.Equal(t, 1, ar.Pool.Size())
	require.Len(t, ar.Resources, 1)
	require.Equal(t, "bad.class", ar.Resources[0].Name)
}

// stubWriter satisfies jclass.ClassWriter with canned output.
type stubWriter struct {
	insn.NopVisitor
	current *jclass.Class
}

func (w *stubWriter) StartClass(c *jclass.Class)   { w.current = c }
func (w *stubWriter) StartMethod(m *jclass.Method) {}
func (w *stubWriter) Bytes() ([]byte, error)       { return []byte("class:" + w.current.Name), nil }

func TestWriteOrder(t *testing.T) {
	data := buildJar(t, map[string][]byte{
		"pkg/A.class": emptyClassBytes("pkg/A"),
		"res.txt":     []byte("res"),
	}, []string{"pkg/A.class", "res.txt"})

	ar, err := ReadBytes(data)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Write(&out, ar, func() jclass.ClassWriter { return &stubWriter{} }))

	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	require.Equal(t, "pkg/A.class", zr.File[0].Name)
	require.Equal(t, "res.txt", zr.File[1].Name)
}
