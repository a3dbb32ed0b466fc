package probe_test

import (
	"encoding/json"
	"testing"

	"github.com/LanXuage/gzmap/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldSetOrder(t *testing.T) {
	fs := probe.NewFieldSet(4)
	fs.AddUint64("sport", 443)
	fs.AddString("classification", "synack")
	fs.AddUint64("success", 1)

	require.Equal(t, 3, fs.Len())
	assert.Equal(t, "sport", fs.Fields()[0].Name)
	assert.Equal(t, "success", fs.Fields()[2].Name)

	f, ok := fs.Get("classification")
	require.True(t, ok)
	assert.Equal(t, probe.FieldTypeString, f.Type)
	assert.Equal(t, "synack", f.Str)
	_, ok = fs.Get("missing")
	assert.False(t, ok)

	b, err := json.Marshal(fs)
	require.NoError(t, err)
	assert.Equal(t, `{"sport":443,"classification":"synack","success":1}`, string(b))

	clone := fs.Clone()
	fs.Reset()
	assert.Equal(t, 0, fs.Len())
	assert.Equal(t, 3, clone.Len())
}

func TestFieldTypeString(t *testing.T) {
	assert.Equal(t, "int", probe.FieldTypeInt.String())
	assert.Equal(t, "string", probe.FieldTypeString.String())
}
