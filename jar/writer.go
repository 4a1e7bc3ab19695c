package jar

import (
	"archive/zip"
	"io"

	"github.com/classflow/classflow/core/jclass"
)

// WriterFactory builds one class writer per class; writers are single-use.
type WriterFactory func() jclass.ClassWriter

// Write re-emits the archive: classes in pool insertion order through
// writers from the factory, then the resources in their original order.
func Write(w io.Writer, ar *Archive, factory WriterFactory) error {
	zw := zip.NewWriter(w)
	for _, c := range ar.Pool.Classes() {
		data, err := jclass.WriteClass(factory(), c)
		if err != nil {
			return err
		}
		f, err := zw.Create(c.Name + ".class")
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			return err
		}
	}
	for _, res := range ar.Resources {
		f, err := zw.Create(res.Name)
		if err != nil {
			return err
		}
		if _, err := f.Write(res.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}
