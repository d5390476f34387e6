package evalctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContext() Context {
	return Context{
		KeyApplicant: map[string]any{"age": float64(52), "smokingStatus": "current"},
		KeyMedicalDisclosures: []any{
			map[string]any{"conditionName": "Type 2 Diabetes", "conditionStatus": "active"},
			map[string]any{"conditionName": "Asthma", "conditionStatus": "resolved"},
		},
		KeyCase: map[string]any{"sumAssured": float64(750000), "tags": map[string]any{"channel": "broker"}},
	}
}

func TestParsePath(t *testing.T) {
	path, err := ParsePath("medicalDisclosures[].conditionName")
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.True(t, path[0].Iterate)
	assert.Equal(t, "medicalDisclosures", path[0].Name)
	assert.Equal(t, "conditionName", path[1].Name)
	assert.Equal(t, "medicalDisclosures[].conditionName", path.String())

	path, err = ParsePath("medicalDisclosures[1].conditionName")
	require.NoError(t, err)
	assert.True(t, path[0].HasKey)
	assert.Equal(t, "1", path[0].Key)
}

func TestParsePath_Invalid(t *testing.T) {
	for _, raw := range []string{"", "applicant..age", "applicant.1age", "a[[b]]", "a b"} {
		_, err := ParsePath(raw)
		assert.Error(t, err, "path %q should be rejected", raw)
		assert.False(t, ValidPath(raw))
	}
}

func TestResolve(t *testing.T) {
	ctx := sampleContext()

	v, ok := Resolve(ctx, "applicant.age")
	assert.True(t, ok)
	assert.Equal(t, float64(52), v)

	v, ok = Resolve(ctx, "medicalDisclosures[1].conditionName")
	assert.True(t, ok)
	assert.Equal(t, "Asthma", v)

	v, ok = Resolve(ctx, "case.tags[channel]")
	assert.True(t, ok)
	assert.Equal(t, "broker", v)

	_, ok = Resolve(ctx, "applicant.height")
	assert.False(t, ok)

	_, ok = Resolve(ctx, "medicalDisclosures[7].conditionName")
	assert.False(t, ok)

	_, ok = Resolve(ctx, "applicant.age.value")
	assert.False(t, ok, "descending into a scalar resolves to absent")
}

func TestSplitIterate(t *testing.T) {
	path, err := ParsePath("medicalDisclosures[].details.severity")
	require.NoError(t, err)

	prefix, rest, ok := path.SplitIterate()
	require.True(t, ok)
	assert.Equal(t, "medicalDisclosures", prefix.String())
	assert.Equal(t, "details.severity", rest.String())
	assert.True(t, path[0].Iterate, "original path is left untouched")

	plain, _ := ParsePath("applicant.age")
	_, _, ok = plain.SplitIterate()
	assert.False(t, ok)
}

func TestContextWith(t *testing.T) {
	ctx := sampleContext()
	elem := map[string]any{"conditionName": "Asthma"}

	augmented := ctx.With(MatchedItem{Array: "medicalDisclosures", Index: 1, Element: elem})
	assert.Equal(t, elem, augmented[KeyMatchedDisclosure])
	assert.Equal(t, float64(1), augmented[KeyMatchedIndex])
	_, present := ctx[KeyMatchedDisclosure]
	assert.False(t, present, "source context must not be modified")

	same := ctx.With(EmptyItem())
	assert.Equal(t, ctx, same)
}

func TestMatchedItemKey(t *testing.T) {
	assert.Equal(t, "", EmptyItem().Key())
	assert.Equal(t, "medicalDisclosures#2", MatchedItem{Array: "medicalDisclosures", Index: 2}.Key())
}

func TestNormalize(t *testing.T) {
	type applicant struct {
		Age  int    `json:"age"`
		Name string `json:"name,omitempty"`
	}
	v, err := Normalize(applicant{Age: 40})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"age": float64(40)}, v)
}
