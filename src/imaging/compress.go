/*
Package imaging re-encodes uploaded images so they fit a byte budget.

The quality search assumes encoded size never shrinks as quality rises. That
holds for JPEG on typical photos but is not guaranteed for every image; when it
does not hold, the search may settle on a lower quality than the best one that
fits. Changing the strategy would change the bytes produced for existing
content, so the assumption stays.
*/
package imaging

import (
	"bytes"
	"image"

	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/utils"
	"golang.org/x/image/draw"
)

const (
	DefaultMaxQuality = 85
	DefaultMinQuality = 60
)

type Strategy string

const (
	StrategyFast     Strategy = "fast"     // first encode at max quality fit
	StrategySearch   Strategy = "search"   // binary search found a fit
	StrategyFallback Strategy = "fallback" // nothing fit; min quality returned
)

type Result struct {
	Data     []byte
	Format   string
	Quality  int
	Strategy Strategy
	Width    int
	Height   int
}

type Compressor struct {
	MaxQuality int
	MinQuality int

	codecs map[string]codec
}

type Option func(c *Compressor)

func WithQualityRange(min, max int) Option {
	return func(c *Compressor) {
		c.MinQuality = utils.IntClamp(1, min, 100)
		c.MaxQuality = utils.IntClamp(c.MinQuality, max, 100)
	}
}

// Replaces the encoder used for format. The encoder is assumed to honor
// quality, so the quality search runs for it.
func WithEncoder(format string, enc Encoder, supportsAlpha bool) Option {
	return func(c *Compressor) {
		c.codecs[NormalizeFormat(format)] = codec{encode: enc, supportsAlpha: supportsAlpha, lossy: true}
	}
}

func NewCompressor(opts ...Option) *Compressor {
	c := &Compressor{
		MaxQuality: DefaultMaxQuality,
		MinQuality: DefaultMinQuality,
		codecs:     defaultCodecs(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

/*
Re-encodes data so that it fits in targetBytes if any quality in
[MinQuality, MaxQuality] allows it, preferring the highest such quality. If
none does, the image is returned at MinQuality. The format is kept unless
there is no encoder for it (WEBP), in which case the output is JPEG.
*/
func (c *Compressor) Compress(data []byte, targetBytes int) (*Result, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, mediaerr.New(mediaerr.Decode, err, "failed to decode image for compression")
	}

	format, cd := c.outputCodec(NormalizeFormat(name))
	if !cd.supportsAlpha && !isOpaque(img) {
		img = FlattenOnWhite(img)
	}

	bounds := img.Bounds()
	res := &Result{
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	if !cd.lossy {
		// Every quality gives the same bytes, so one encode decides it.
		out, err := encodeAt(cd, img, c.MaxQuality)
		if err != nil {
			return nil, mediaerr.New(mediaerr.Compression, err, "failed to encode %s", format)
		}
		res.Data = out
		if len(out) <= targetBytes {
			res.Quality = c.MaxQuality
			res.Strategy = StrategyFast
		} else {
			res.Quality = c.MinQuality
			res.Strategy = StrategyFallback
		}
		return res, nil
	}

	if out, err := encodeAt(cd, img, c.MaxQuality); err == nil && len(out) <= targetBytes {
		res.Data = out
		res.Quality = c.MaxQuality
		res.Strategy = StrategyFast
		return res, nil
	}

	low, high := c.MinQuality, c.MaxQuality
	var best []byte
	bestQuality := 0
	for low <= high {
		mid := (low + high) / 2
		out, err := encodeAt(cd, img, mid)
		if err == nil && len(out) <= targetBytes {
			best = out
			bestQuality = mid
			low = mid + 1
		} else {
			// Encoder failures count as "too big" and push the search down.
			high = mid - 1
		}
	}

	if best != nil {
		res.Data = best
		res.Quality = bestQuality
		res.Strategy = StrategySearch
		return res, nil
	}

	out, err := encodeAt(cd, img, c.MinQuality)
	if err != nil {
		return nil, mediaerr.New(mediaerr.Compression, err, "failed to encode %s at minimum quality %d", format, c.MinQuality)
	}
	res.Data = out
	res.Quality = c.MinQuality
	res.Strategy = StrategyFallback
	return res, nil
}

func (c *Compressor) outputCodec(format string) (string, codec) {
	if cd, ok := c.codecs[format]; ok {
		return format, cd
	}
	return JPEG, c.codecs[JPEG]
}

func encodeAt(cd codec, img image.Image, quality int) (out []byte, err error) {
	defer utils.RecoverPanicAsError(&err)

	var buf bytes.Buffer
	if err := cd.encode(&buf, img, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// Composites img over an opaque white background.
func FlattenOnWhite(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}
