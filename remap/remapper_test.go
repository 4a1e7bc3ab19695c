package remap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/jclass"
	"github.com/classflow/classflow/core/ref"
)

func TestApplyRenames(t *testing.T) {
	pool := jclass.NewPool()

	obf := &jclass.Class{Name: "a/b", Access: jclass.AccPublic, Super: ref.NewClassRef("java/lang/Object")}
	obf.Fields = append(obf.Fields, &jclass.Field{Name: "c", Desc: "I"})

	user := &jclass.Class{Name: "app/Main", Access: jclass.AccPublic, Super: ref.NewClassRef("java/lang/Object")}
	m := &jclass.Method{Access: jclass.AccPublic | jclass.AccStatic, Name: "run", RetType: "V", Code: insn.NewCode()}
	get := insn.NewField(insn.GETSTATIC, ref.NewFieldRef("a/b", "c", "I"))
	typ := insn.NewType(insn.NEW, ref.NewClassRef("a/b"))
	m.Code.Append(get)
	m.Code.Append(insn.NewSimple(insn.POP))
	m.Code.Append(typ)
	m.Code.Append(insn.NewSimple(insn.POP))
	m.Code.Append(insn.NewSimple(insn.RETURN))
	user.Methods = append(user.Methods, m)

	require.NoError(t, pool.AddClass(obf))
	require.NoError(t, pool.AddClass(user))

	mapping := NewMapping()
	mapping.Classes["a/b"] = "app/Counter"
	mapping.Fields["a/b.c:I"] = "count"

	Apply(pool, mapping)

	require.Equal(t, "app/Counter", obf.Name)
	require.Equal(t, "count", obf.Fields[0].Name)
	require.Equal(t, "app/Counter", get.Field.Owner)
	require.Equal(t, "count", get.Field.Name)
	require.Equal(t, "app/Counter", typ.Class.Name)
}
