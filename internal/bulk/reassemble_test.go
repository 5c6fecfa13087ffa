package bulk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReassembleParentChild(t *testing.T) {
	lines := [][]byte{
		[]byte(`{"id":"gid://shopify/Product/1","handle":"tshirt"}`),
		[]byte(`{"id":"gid://shopify/ProductVariant/11","__parentId":"gid://shopify/Product/1","sku":"RED-L"}`),
		[]byte(`{"id":"gid://shopify/Product/2","handle":"mug"}`),
	}

	var parseErrs []int
	roots := reassemble(lines, func(lineNumber int, err error) {
		parseErrs = append(parseErrs, lineNumber)
	})

	require.Empty(t, parseErrs)
	require.Len(t, roots, 2)
	require.Equal(t, "gid://shopify/Product/1", roots[0].ID)
	require.Len(t, roots[0].Children, 1)
	require.Equal(t, "gid://shopify/ProductVariant/11", roots[0].Children[0].ID)

	var sku string
	require.NoError(t, json.Unmarshal(roots[0].Children[0].Fields["sku"], &sku))
	require.Equal(t, "RED-L", sku)

	require.Equal(t, "gid://shopify/Product/2", roots[1].ID)
	require.Empty(t, roots[1].Children)
}

func TestReassembleSkipsMalformedLines(t *testing.T) {
	lines := [][]byte{
		[]byte(`{"id":"gid://shopify/Product/1","handle":"tshirt"}`),
		[]byte(`not json`),
		[]byte(`{"id":"gid://shopify/Product/2","handle":"mug"}`),
	}

	var parseErrs []int
	roots := reassemble(lines, func(lineNumber int, err error) {
		parseErrs = append(parseErrs, lineNumber)
	})

	require.Equal(t, []int{2}, parseErrs)
	require.Len(t, roots, 2)
}

func TestReassembleNestedChildren(t *testing.T) {
	lines := [][]byte{
		[]byte(`{"id":"gid://shopify/Product/1","handle":"tshirt"}`),
		[]byte(`{"id":"gid://shopify/ProductVariant/11","__parentId":"gid://shopify/Product/1"}`),
		[]byte(`{"id":"gid://shopify/Metafield/99","__parentId":"gid://shopify/ProductVariant/11","key":"care"}`),
	}

	roots := reassemble(lines, nil)
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Children, 1)
	variant := roots[0].Children[0]
	require.Len(t, variant.Children, 1)
	require.Equal(t, "gid://shopify/Metafield/99", variant.Children[0].ID)
}
