// Package transfer downloads a single item.
//
// An Executor performs one attempt at a time. Each attempt stats the temp
// file, requests the remaining bytes with a Range header, appends or
// truncates depending on the response, streams with a per-read deadline,
// then verifies and promotes the temp file to the destination. The temp
// file is the only state shared between attempts, so an attempt that fails
// midway is resumed by the next one.
//
// Classify maps errors to retry classes. It is used by the executor and
// by callers that need to judge errors raised outside an attempt.
package transfer
