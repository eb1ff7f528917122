package scanning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/budget-sync/internal/gateway"
)

// flakyCall fails with the queued errors, then succeeds
type flakyCall struct {
	failures []error
	calls    int
}

func (f *flakyCall) attempt(ctx context.Context) (string, error) {
	f.calls++
	if f.calls <= len(f.failures) {
		return "", f.failures[f.calls-1]
	}
	return fmt.Sprintf("ok after %d", f.calls), nil
}

func timeouts(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = fmt.Errorf("calling POST /ai/scan-receipt: %w", context.DeadlineExceeded)
	}
	return errs
}

var _ = Describe("Uploader", func() {
	var (
		uploader *Uploader
		call     *flakyCall
		result   string
		attempts int
		err      error
	)

	BeforeEach(func() {
		uploader = NewUploader(DefaultMaxRetries)
		call = &flakyCall{}
	})

	JustBeforeEach(func() {
		result, attempts, err = Upload(context.Background(), uploader, call.attempt)
	})

	When("the first attempt succeeds", func() {
		It("should make exactly one attempt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(attempts).To(Equal(1))
			Expect(call.calls).To(Equal(1))
		})
	})

	DescribeTable("transient failures before success",
		func(failures, expectedAttempts int) {
			call := &flakyCall{failures: timeouts(failures)}
			_, n, err := Upload(context.Background(), NewUploader(DefaultMaxRetries), call.attempt)
			Expect(n).To(Equal(expectedAttempts))
			Expect(call.calls).To(Equal(expectedAttempts))
			if failures <= DefaultMaxRetries {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			}
		},
		Entry("one timeout", 1, 2),
		Entry("two timeouts", 2, 3),
		Entry("three timeouts exhaust the budget", 3, 3),
		Entry("many timeouts stop at the budget", 10, 3),
	)

	When("the first failure is terminal", func() {
		var terminal error

		BeforeEach(func() {
			terminal = &gateway.APIError{StatusCode: http.StatusBadRequest, Detail: "please upload an image"}
			call.failures = []error{terminal}
		})

		It("should make exactly one attempt and surface the error", func() {
			Expect(attempts).To(Equal(1))
			Expect(call.calls).To(Equal(1))
			Expect(err).To(Equal(terminal))
			Expect(result).To(BeEmpty())
		})
	})

	When("a terminal failure follows a timeout", func() {
		BeforeEach(func() {
			call.failures = append(timeouts(1), errors.New("validation failed"))
		})

		It("should stop at the terminal failure", func() {
			Expect(attempts).To(Equal(2))
			Expect(err).To(MatchError("validation failed"))
		})
	})

	When("retries are disabled", func() {
		BeforeEach(func() {
			uploader = NewUploader(-1)
			call.failures = timeouts(1)
		})

		It("should make a single attempt", func() {
			Expect(uploader.MaxAttempts()).To(Equal(1))
			Expect(attempts).To(Equal(1))
			Expect(err).To(HaveOccurred())
		})
	})

	When("an attempt outlives the per-attempt timeout", func() {
		It("should time out the first attempt and retry", func() {
			uploader.timeout = 20 * time.Millisecond
			calls := 0
			value, n, err := Upload(context.Background(), uploader, func(ctx context.Context) (string, error) {
				calls++
				if calls == 1 {
					<-ctx.Done()
					return "", ctx.Err()
				}
				return "second", nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
			Expect(value).To(Equal("second"))
		})
	})

	When("the parent context is cancelled", func() {
		It("should not retry", func() {
			ctx, cancel := context.WithCancel(context.Background())
			calls := 0
			_, n, err := Upload(ctx, uploader, func(ctx context.Context) (string, error) {
				calls++
				cancel()
				return "", fmt.Errorf("wrapped: %w", context.DeadlineExceeded)
			})
			Expect(err).To(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(calls).To(Equal(1))
		})
	})
})

var _ = Describe("IsTransient", func() {
	DescribeTable("classification",
		func(err error, transient bool) {
			Expect(IsTransient(err)).To(Equal(transient))
		},
		Entry("nil", nil, false),
		Entry("deadline exceeded", fmt.Errorf("calling: %w", context.DeadlineExceeded), true),
		Entry("connection aborted", fmt.Errorf("calling: %w", syscall.ECONNABORTED), true),
		Entry("connection reset", fmt.Errorf("calling: %w", syscall.ECONNRESET), true),
		Entry("unexpected EOF", fmt.Errorf("reading: %w", io.ErrUnexpectedEOF), true),
		Entry("gateway timeout", &gateway.APIError{StatusCode: http.StatusGatewayTimeout}, true),
		Entry("request timeout", &gateway.APIError{StatusCode: http.StatusRequestTimeout}, true),
		Entry("validation error", &gateway.APIError{StatusCode: http.StatusUnprocessableEntity}, false),
		Entry("server error", &gateway.APIError{StatusCode: http.StatusInternalServerError}, false),
		Entry("cancelled", context.Canceled, false),
		Entry("plain error", errors.New("boom"), false),
	)
})
