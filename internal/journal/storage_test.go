package journal

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "archive"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("should write the file under its sanitized name", func() {
			name, err := storage.Save("My Receipt (1).JPG", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("My Receipt 1.jpg"))
			Expect(filepath.Join(tmpDir, "archive", name)).To(BeAnExistingFile())
		})

		It("should not escape the base directory", func() {
			name, err := storage.Save("../../etc/passwd", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("passwd"))
			Expect(filepath.Join(tmpDir, "archive", "passwd")).To(BeAnExistingFile())
		})
	})

	Describe("Get", func() {
		It("should read back saved data", func() {
			name, err := storage.Save("a.csv", []byte("id,amount"))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("id,amount"))
		})

		It("should fail for a missing file", func() {
			_, err := storage.Get("missing.jpg")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			name, err := storage.Save("a.jpg", []byte("x"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete(name)).To(Succeed())
			Expect(filepath.Join(tmpDir, "archive", name)).NotTo(BeAnExistingFile())
		})
	})
})

var _ = DescribeTable("SanitizeFilename",
	func(input, expected string) {
		Expect(SanitizeFilename(input)).To(Equal(expected))
	},
	Entry("plain", "receipt.jpg", "receipt.jpg"),
	Entry("special characters", "rec#ei$pt!.png", "receipt.png"),
	Entry("collapsed spaces", "a   b.pdf", "a b.pdf"),
	Entry("no extension", "export", "export"),
	Entry("empty", "", "file"),
	Entry("only symbols", "@@@.heic", "file.heic"),
	Entry("long names", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.jpg", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.jpg"),
)
