package resiliency

import (
	"context"
	"sync"

	"github.com/erpc/walletrpc/common"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Operation is one attempt of a retried call. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Attempt runs op up to maxAttempts times, sequentially, so every attempt
// observes the side effects of the previous failure. The first success wins
// and earlier errors are discarded. When every attempt fails the returned
// error is a *common.ErrRetryExhausted holding all errors in order.
//
// Every failure is retried; callers only wrap operations they consider
// retry-eligible. A cancelled ctx stops further attempts.
func Attempt[T any](ctx context.Context, maxAttempts int, op Operation[T]) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		mu   sync.Mutex
		errs = make([]error, 0, maxAttempts)
	)

	policy := retrypolicy.Builder[T]().
		WithMaxAttempts(maxAttempts).
		HandleIf(func(_ failsafe.ExecutionAttempt[T], _ T, err error) bool {
			return err != nil && ctx.Err() == nil
		}).
		Build()

	result, execErr := failsafe.NewExecutor[T](policy).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[T]) (T, error) {
			mu.Lock()
			attempt := len(errs) + 1
			mu.Unlock()

			res, err := op(exec.Context(), attempt)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return res, err
		})

	if execErr == nil {
		return result, nil
	}

	var zero T
	mu.Lock()
	defer mu.Unlock()
	if len(errs) == 0 {
		// The executor refused to run at all, e.g. ctx was already done.
		return zero, common.NewErrRetryExhausted([]error{execErr})
	}
	collected := make([]error, len(errs))
	copy(collected, errs)
	return zero, common.NewErrRetryExhausted(collected)
}

// CollapseErrors turns an exhausted retry into what callers should see: the
// single underlying error if every attempt failed the same way, otherwise an
// ErrHeterogeneousFailures carrying the whole set. Other errors pass through.
func CollapseErrors(err error) error {
	rex, ok := err.(*common.ErrRetryExhausted)
	if !ok {
		return err
	}
	errs := rex.Errors()
	if len(errs) == 0 {
		return err
	}
	sig := common.ErrorSignature(errs[0])
	for _, e := range errs[1:] {
		if common.ErrorSignature(e) != sig {
			return common.NewErrHeterogeneousFailures(errs)
		}
	}
	return errs[0]
}
