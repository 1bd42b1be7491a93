// Package mock provides a scriptable test double for verify.Verifier.
package mock

import (
	"context"
	"sync"

	"github.com/triamed/voicefront/pkg/provider/verify"
)

// VerifyCall records a single Verify invocation.
type VerifyCall struct {
	EnrollPath string
	SamplePath string
}

// Verifier is a mock implementation of verify.Verifier. Results are keyed
// by sample path; unkeyed calls fall back to Result.
type Verifier struct {
	mu sync.Mutex

	// Result is the default result for every Verify call.
	Result verify.Result

	// ResultsByPath overrides Result for specific sample paths.
	ResultsByPath map[string]verify.Result

	// Err, if non-nil, is returned by every Verify call.
	Err error

	// Calls records every Verify invocation in order.
	Calls []VerifyCall
}

func (v *Verifier) Verify(ctx context.Context, enrollPath, samplePath string) (verify.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Calls = append(v.Calls, VerifyCall{EnrollPath: enrollPath, SamplePath: samplePath})
	if v.Err != nil {
		return verify.Result{}, v.Err
	}
	if r, ok := v.ResultsByPath[samplePath]; ok {
		return r, nil
	}
	return v.Result, nil
}

var _ verify.Verifier = (*Verifier)(nil)
