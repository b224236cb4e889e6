package divisions

import "testing"

func TestValidateGallery(t *testing.T) {
	t.Parallel()

	items := []GalleryItem{
		{URL: " https://img.example/1.jpg ", OrderIndex: 0},
		{URL: "", OrderIndex: 1},
		{URL: "ftp://img.example/2.jpg", OrderIndex: 2},
		{URL: "/relative/3.jpg", OrderIndex: 3},
		{URL: "https://img.example/1.jpg", OrderIndex: 4},
		{URL: "http://img.example/5.jpg", Description: "Cozinha", OrderIndex: 5},
		{URL: "data:image/png;base64,AAAA", OrderIndex: 6},
		{URL: "https:///nohost.jpg", OrderIndex: 7},
	}

	got := ValidateGallery(items)

	want := []GalleryItem{
		{URL: "https://img.example/1.jpg", OrderIndex: 0},
		{URL: "http://img.example/5.jpg", Description: "Cozinha", OrderIndex: 5},
		{URL: "data:image/png;base64,AAAA", OrderIndex: 6},
	}
	if len(got) != len(want) {
		t.Fatalf("ValidateGallery() returned %d items, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestValidateGallery_Empty(t *testing.T) {
	t.Parallel()

	if got := ValidateGallery(nil); len(got) != 0 {
		t.Errorf("ValidateGallery(nil) = %v, want empty", got)
	}
}
