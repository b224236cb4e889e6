package divisions

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Fingerprinter computes the perceptual hash of a photo. A nil hash means the
// photo could not be fetched or decoded.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, url string) *goimagehash.ImageHash
}

// FingerprintFunc adapts a function to Fingerprinter.
type FingerprintFunc func(ctx context.Context, url string) *goimagehash.ImageHash

// Fingerprint calls f(ctx, url).
func (f FingerprintFunc) Fingerprint(ctx context.Context, url string) *goimagehash.ImageHash {
	return f(ctx, url)
}

// Fingerprint downloads the photo at url and returns its 64-bit perceptual
// hash. EXIF orientation is applied before hashing so a rotated copy of the
// same shot hashes alike. Failures are logged and return nil.
func (cfg *Config) Fingerprint(ctx context.Context, url string) *goimagehash.ImageHash {
	cfg.defaults()

	var cacheKey string
	if cfg.Cache != nil {
		cacheKey = cfg.Cache.Key("division_phash", url)
		var cached uint64
		if cfg.Cache.Get(ctx, cacheKey, &cached) {
			return goimagehash.NewImageHash(cached, goimagehash.PHash)
		}
	}

	result, err := cfg.Download(ctx, url, DownloadOpts{})
	if err != nil || result == nil {
		cfg.Logger.Warn("divisions: could not download photo for hashing", "url", url)
		cfg.Metrics.observeFingerprint(false)
		return nil
	}

	hash, err := HashImage(result.Data)
	if err != nil {
		cfg.Logger.Warn("divisions: could not hash photo", "url", url, "error", err.Error())
		cfg.Metrics.observeFingerprint(false)
		return nil
	}
	cfg.Metrics.observeFingerprint(true)

	if cfg.Cache != nil {
		cfg.Cache.Set(ctx, cacheKey, hash.GetHash())
	}
	return hash
}

// HashImage decodes raw image bytes (JPEG, PNG, GIF or WebP), applies the EXIF
// orientation, normalises to RGBA and returns the perceptual hash.
func HashImage(data []byte) (*goimagehash.ImageHash, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	img = applyOrientation(img, ExtractOrientation(data))
	return goimagehash.PerceptionHash(toRGBA(img))
}

// toRGBA copies img into a zero-origin RGBA image so that palette, CMYK and
// YCbCr sources hash identically.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Distance returns the Hamming distance between two hashes. When either hash
// is missing, or the two were built by different algorithms, the result is
// threshold+1 so the pair never clusters together.
func Distance(a, b *goimagehash.ImageHash, threshold int) int {
	if a == nil || b == nil {
		return threshold + 1
	}
	d, err := a.Distance(b)
	if err != nil {
		return threshold + 1
	}
	return d
}
