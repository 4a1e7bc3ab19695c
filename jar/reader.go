// Package jar reads and writes jar archives for the class pool. The jar
// layer is a thin collaborator: classes travel as bytes, everything else is
// carried through untouched.
package jar

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/classflow/classflow/core/jclass"
	"github.com/classflow/classflow/log"
)

// Archive is the decoded content of one jar: the parsed classes are handed
// to the pool, resources stay as raw entries in archive order.
type Archive struct {
	Pool      *jclass.Pool
	Resources []Resource
}

// Resource is a non-class jar entry.
type Resource struct {
	Name string
	Data []byte
}

// Read parses the jar at path into a fresh pool. Class entries are parsed
// concurrently; insertion into the pool follows archive order so that jar
// output stays deterministic. Unparseable class entries are kept as
// resources rather than dropped.
func Read(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readEntries(zr.File)
}

func readEntries(files []*zip.File) (*Archive, error) {
	type entry struct {
		name  string
		data  []byte
		class *jclass.Class
	}
	entries := make([]*entry, 0, len(files))
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		entries = append(entries, &entry{name: f.Name, data: data})
	}

	var g errgroup.Group
	for _, e := range entries {
		if !strings.HasSuffix(e.name, ".class") {
			continue
		}
		e := e
		g.Go(func() error {
			c, err := jclass.Parse(e.data)
			if err != nil {
				log.Warn("skipping unparseable class entry", "entry", e.name, "err", err)
				return nil
			}
			e.class = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ar := &Archive{Pool: jclass.NewPool()}
	for _, e := range entries {
		if e.class == nil {
			ar.Resources = append(ar.Resources, Resource{Name: e.name, Data: e.data})
			continue
		}
		if err := ar.Pool.AddClass(e.class); err != nil {
			return nil, err
		}
	}
	return ar, nil
}

// ReadBytes parses an in-memory jar.
func ReadBytes(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return readEntries(zr.File)
}
