// Package retry drives a single attempt function through exponential backoff.
//
// Each attempt reports an [Outcome]: [Success] stops the loop, [Fatal]
// stops it and returns the attempt's error, and [Retryable] sleeps for the
// next jittered interval before trying again. When the policy's elapsed
// budget runs out the last retryable error is returned inside an
// [ExhaustedError].
//
//	d := retry.New(retry.DefaultPolicy())
//	err := d.Run(ctx, func(ctx context.Context) retry.Outcome {
//	    return exec.Attempt(ctx)
//	})
//
// Backoff intervals come from github.com/cenkalti/backoff/v3.
package retry
