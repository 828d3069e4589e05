package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indentrecon/indentrecon/internal/models"
)

func newIndentEditor() *IndentLineEditor {
	return NewIndentLineEditor(NewConverter(testCatalog()))
}

func TestIndentLineEditor_SetSKUAndQty(t *testing.T) {
	e := newIndentEditor()

	line, err := e.SetSKU(models.IndentLine{}, "MILK-500")
	require.NoError(t, err)
	assert.Equal(t, "Nos", line.UOM)
	assert.Nil(t, line.PackagingCapacity)

	line, err = e.SetRequestedQty(line, dec("50"))
	require.NoError(t, err)
	require.NotNil(t, line.PackagingCapacity)
	assert.Equal(t, 24, *line.PackagingCapacity)
	assert.Equal(t, int64(2), line.Crates)
	assert.True(t, dec("2").Equal(line.Loose))
	assert.True(t, dec("50").Equal(line.ActualQty))
	assert.True(t, line.PackagingConsistent())
}

func TestIndentLineEditor_DifferenceThenRepackage(t *testing.T) {
	e := newIndentEditor()

	line, err := e.SetSKU(models.IndentLine{}, "MILK-500")
	require.NoError(t, err)
	line, err = e.SetRequestedQty(line, dec("100"))
	require.NoError(t, err)

	line, err = e.SetDifference(line, dec("10"))
	require.NoError(t, err)
	assert.True(t, dec("90").Equal(line.ActualQty))
	assert.Equal(t, int64(4), line.Crates, "difference does not repackage")

	again, err := e.SetDifference(line, dec("10"))
	require.NoError(t, err)
	assert.True(t, line.ActualQty.Equal(again.ActualQty))

	line, err = e.SetRequestedQty(line, dec("72"))
	require.NoError(t, err)
	assert.True(t, line.Difference.IsZero(), "new quantity resets difference")
	assert.True(t, dec("72").Equal(line.ActualQty))
	assert.Equal(t, int64(3), line.Crates)
}

func TestIndentLineEditor_NegativeDifferenceNotClamped(t *testing.T) {
	e := newIndentEditor()
	line, _ := e.SetSKU(models.IndentLine{}, "MILK-500")
	line, _ = e.SetRequestedQty(line, dec("40"))

	line, err := e.SetDifference(line, dec("-8"))
	require.NoError(t, err)
	assert.True(t, dec("48").Equal(line.ActualQty))
}

func TestIndentLineEditor_ZeroQuantity(t *testing.T) {
	e := newIndentEditor()
	line, _ := e.SetSKU(models.IndentLine{}, "MILK-500")

	line, err := e.SetRequestedQty(line, dec("0"))
	require.NoError(t, err)
	assert.Nil(t, line.PackagingCapacity)
	assert.Equal(t, int64(0), line.Crates)
	assert.True(t, line.ActualQty.IsZero())
}

func TestIndentLineEditor_RejectsNegativeQuantity(t *testing.T) {
	e := newIndentEditor()
	line, _ := e.SetSKU(models.IndentLine{}, "MILK-500")
	line, _ = e.SetRequestedQty(line, dec("30"))

	got, err := e.SetRequestedQty(line, dec("-1"))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, line, got)
}

func TestIndentLineEditor_MissingConfigurationIsWarning(t *testing.T) {
	e := newIndentEditor()
	line, _ := e.SetSKU(models.IndentLine{}, "GHEE-1L")

	line, err := e.SetRequestedQty(line, dec("9"))
	require.ErrorIs(t, err, ErrMissingConfiguration)
	assert.True(t, IsWarning(err))
	assert.True(t, dec("9").Equal(line.RequestedQty), "quantity is kept")
	assert.Nil(t, line.PackagingCapacity)
	assert.True(t, dec("9").Equal(line.Loose), "everything is loose")
	assert.True(t, dec("9").Equal(line.ActualQty))
}

func TestIndentLineEditor_LooseOnlyFallback(t *testing.T) {
	e := newIndentEditor()

	line, err := e.SetSKU(models.IndentLine{}, "GHEE-1L")
	require.NoError(t, err)
	line, err = e.SetRequestedQty(line, dec("7"))
	require.ErrorIs(t, err, ErrMissingConfiguration)

	assert.Equal(t, int64(0), line.Crates)
	assert.True(t, dec("7").Equal(line.Loose), "loose = %s", line.Loose)
	assert.True(t, dec("7").Equal(line.ActualQty))
	assert.Nil(t, line.PackagingCapacity)

	line, err = e.SetSKU(line, "MILK-500")
	require.NoError(t, err)
	require.NotNil(t, line.PackagingCapacity)
	assert.True(t, dec("7").Equal(line.Loose))
	assert.True(t, line.PackagingConsistent())
}

func TestIndentLineEditor_UnknownSKU(t *testing.T) {
	e := newIndentEditor()

	line, err := e.SetSKU(models.IndentLine{}, "NOPE")
	require.ErrorIs(t, err, ErrMissingConfiguration)
	assert.True(t, IsWarning(err))
	assert.Equal(t, "NOPE", line.SKU)

	_, err = e.SetSKU(models.IndentLine{}, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
