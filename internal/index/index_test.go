package index

import "testing"

func TestAddVariantRegistersBothKeys(t *testing.T) {
	idx := New()
	idx.AddVariant("tshirt:RED-L", "tshirt:pos1", "gid://shopify/ProductVariant/1")

	id, ok := idx.Variant("tshirt:RED-L")
	if !ok || id != "gid://shopify/ProductVariant/1" {
		t.Fatalf("sku key lookup: id=%q ok=%v", id, ok)
	}
	id, ok = idx.Variant("tshirt:pos1")
	if !ok || id != "gid://shopify/ProductVariant/1" {
		t.Fatalf("pos key lookup: id=%q ok=%v", id, ok)
	}
}

func TestAddVariantWithoutSKU(t *testing.T) {
	idx := New()
	idx.AddVariant("", "tshirt:pos2", "gid://shopify/ProductVariant/2")

	if _, ok := idx.Variant("tshirt:RED-L"); ok {
		t.Fatal("unexpected sku key present")
	}
	id, ok := idx.Variant("tshirt:pos2")
	if !ok || id != "gid://shopify/ProductVariant/2" {
		t.Fatalf("pos key lookup: id=%q ok=%v", id, ok)
	}
}

func TestProductAddAndLookup(t *testing.T) {
	idx := New()
	if _, ok := idx.Product("tshirt"); ok {
		t.Fatal("expected miss on empty index")
	}
	idx.AddProduct("tshirt", "gid://shopify/Product/1")
	id, ok := idx.Product("tshirt")
	if !ok || id != "gid://shopify/Product/1" {
		t.Fatalf("id=%q ok=%v", id, ok)
	}
}

func TestFileByNameAndURL(t *testing.T) {
	idx := New()
	idx.AddFileByURL("https://cdn.example.com/logo.png", "gid://shopify/MediaImage/1")
	idx.AddFileByName("logo.png", FileEntry{ID: "gid://shopify/MediaImage/1", AltText: "logo"})

	id, ok := idx.FileByURL("https://cdn.example.com/logo.png")
	if !ok || id != "gid://shopify/MediaImage/1" {
		t.Fatalf("FileByURL: id=%q ok=%v", id, ok)
	}
	entry, ok := idx.FileByName("logo.png")
	if !ok || entry.AltText != "logo" {
		t.Fatalf("FileByName: entry=%+v ok=%v", entry, ok)
	}
}

func TestSnapshotCounts(t *testing.T) {
	idx := New()
	idx.AddProduct("a", "1")
	idx.AddProduct("b", "2")
	idx.AddCollection("shirts", "3")

	snap := idx.Snapshot()
	if snap["products"] != 2 {
		t.Fatalf("products count = %d", snap["products"])
	}
	if snap["collections"] != 1 {
		t.Fatalf("collections count = %d", snap["collections"])
	}
}
