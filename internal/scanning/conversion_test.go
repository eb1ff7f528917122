package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// noisePNG encodes random pixels, which PNG cannot compress, so the result is large
func noisePNG(width, height int) []byte {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Normalizer", func() {
	var (
		normalizer  *Normalizer
		input       []byte
		contentType string
		result      Image
	)

	BeforeEach(func() {
		normalizer = NewNormalizer()
		contentType = "image/png"
	})

	JustBeforeEach(func() {
		result = normalizer.Normalize(input, contentType)
	})

	When("the image is smaller than the passthrough size", func() {
		BeforeEach(func() {
			input = noisePNG(64, 64)
			Expect(len(input)).To(BeNumerically("<", PassthroughSize))
		})

		It("should return the input bytes unchanged", func() {
			Expect(result.Data).To(Equal(input))
			Expect(result.Converted).To(BeFalse())
			Expect(result.ContentType).To(Equal("image/png"))
		})
	})

	When("a large image is wider than the maximum", func() {
		var copyOfInput []byte

		BeforeEach(func() {
			input = noisePNG(1600, 400)
			copyOfInput = append([]byte(nil), input...)
			Expect(len(input)).To(BeNumerically(">=", PassthroughSize))
		})

		It("should produce a valid JPEG no wider than the maximum", func() {
			Expect(result.Converted).To(BeTrue())
			Expect(result.ContentType).To(Equal("image/jpeg"))

			cfg, err := jpeg.DecodeConfig(bytes.NewReader(result.Data))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(DefaultMaxWidth))
			Expect(cfg.Height).To(Equal(256))
		})

		It("should not mutate the input", func() {
			Expect(input).To(Equal(copyOfInput))
		})
	})

	When("a large image is already narrow enough", func() {
		BeforeEach(func() {
			input = noisePNG(500, 500)
			Expect(len(input)).To(BeNumerically(">=", PassthroughSize))
		})

		It("should re-encode without upscaling", func() {
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(result.Data))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(500))
			Expect(cfg.Height).To(Equal(500))
		})
	})

	When("the maximum width is customized", func() {
		BeforeEach(func() {
			normalizer.MaxWidth = 300
			input = noisePNG(600, 600)
		})

		It("should honour it", func() {
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(result.Data))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(300))
			Expect(cfg.Height).To(Equal(300))
		})
	})

	When("a large input is corrupt", func() {
		BeforeEach(func() {
			contentType = "image/jpeg"
			input = bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, PassthroughSize/2)
		})

		It("should return the original bytes", func() {
			Expect(result.Data).To(Equal(input))
			Expect(result.Converted).To(BeFalse())
			Expect(result.ContentType).To(Equal("image/jpeg"))
		})
	})

	When("a small HEIC file is given", func() {
		var logs *bytes.Buffer

		BeforeEach(func() {
			contentType = ""
			input = append([]byte{0, 0, 0, 24, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}, []byte("not really heic")...)

			logs = &bytes.Buffer{}
			previous := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(logs, nil)))
			DeferCleanup(func() { slog.SetDefault(previous) })
		})

		It("should pass it through without trying to decode it", func() {
			Expect(result.Data).To(Equal(input))
			Expect(result.Converted).To(BeFalse())
			Expect(result.ContentType).To(Equal("image/heic"))
			Expect(logs.String()).NotTo(ContainSubstring("normalization failed"))
		})
	})

	When("a small PDF cannot be rendered", func() {
		BeforeEach(func() {
			contentType = "application/pdf"
			input = []byte("%PDF-1.4 ... fake pdf content ...")
		})

		It("should fall back to the original", func() {
			Expect(result.Data).To(Equal(input))
			Expect(result.ContentType).To(Equal("application/pdf"))
		})
	})
})

var _ = Describe("normalizeMimeType", func() {
	It("should lowercase and strip parameters", func() {
		Expect(normalizeMimeType(" Image/JPEG; charset=binary ", nil)).To(Equal("image/jpeg"))
	})

	It("should sniff a missing type", func() {
		Expect(normalizeMimeType("", noisePNG(4, 4))).To(Equal("image/png"))
	})

	It("should default unknown bytes to JPEG", func() {
		Expect(normalizeMimeType("", []byte("???"))).To(Equal("image/jpeg"))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect the ftyp brand", func() {
		Expect(isHEICFormat([]byte{0, 0, 0, 24, 'f', 't', 'y', 'p', 'm', 'i', 'f', '1'})).To(BeTrue())
	})

	It("should reject short input", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
