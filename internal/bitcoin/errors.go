package bitcoin

import "errors"

// Sentinel error kinds, wrapped with context via fmt.Errorf("...: %w", ...)
// at each call site. Callers classify with errors.Is/errors.As.
var (
	// ErrConfig marks an unknown network/storage selector or a node/network mismatch.
	ErrConfig = errors.New("config error")
	// ErrDecode marks a transaction or script that could not be parsed.
	ErrDecode = errors.New("decode error")
)
