package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{"a": IRInt(1), "A": IRInt(2), "aa": IRInt(3), "AA": IRInt(4)}
	assert.Equal(t, []string{"A", "AA", "a", "aa"}, obj.SortedKeys())
}

func TestIRObjectCloneIsDeep(t *testing.T) {
	obj := IRObject{
		"list":   IRArray{IRInt(1), IRObject{"k": IRString("v")}},
		"nested": IRObject{"flag": IRBool(true)},
	}
	cp := obj.Clone()
	require.Equal(t, obj, cp)

	cp["nested"].(IRObject)["flag"] = IRBool(false)
	cp["list"].(IRArray)[1].(IRObject)["k"] = IRString("changed")

	assert.Equal(t, IRBool(true), obj["nested"].(IRObject)["flag"])
	assert.Equal(t, IRString("v"), obj["list"].(IRArray)[1].(IRObject)["k"])
}

func TestIRObjectCloneNil(t *testing.T) {
	var obj IRObject
	assert.Nil(t, obj.Clone())
}

func TestGetString(t *testing.T) {
	obj := IRObject{"s": IRString("x"), "n": IRInt(1)}
	assert.Equal(t, "x", obj.GetString("s"))
	assert.Equal(t, "", obj.GetString("n"))
	assert.Equal(t, "", obj.GetString("missing"))
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{"b": IRInt(2), "a": IRArray{IRString("x"), IRBool(false)}}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",false],"b":2}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestUnmarshalIRValueRejectsFloatsAndNull(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`{"a":1.5}`))
	assert.Error(t, err)
	_, err = UnmarshalIRValue([]byte(`{"a":null}`))
	assert.Error(t, err)

	v, err := UnmarshalIRValue([]byte(`{"a":[1,"x",true]}`))
	require.NoError(t, err)
	assert.Equal(t, IRObject{"a": IRArray{IRInt(1), IRString("x"), IRBool(true)}}, v)
}

func TestIRObjectUnmarshalJSON(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"n":null,"big":"340282366920938463463374607431768211456"}`), &obj))
	assert.Equal(t, IRObject{"n": IRNull{}, "big": IRString("340282366920938463463374607431768211456")}, obj)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &obj))
	assert.Error(t, json.Unmarshal([]byte(`{"f":0.5}`), &obj))
	assert.Error(t, json.Unmarshal([]byte(`{"e":1e3}`), &obj))
}

func TestMarshalJSONIsCanonical(t *testing.T) {
	obj := IRObject{"html": IRString("<a&b>")}
	data, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<a&b>"}`, string(data))

	_, err = IRObject{"n": IRNull{}}.MarshalJSON()
	assert.Error(t, err)
}
