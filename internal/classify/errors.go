package classify

import "errors"

// ErrRateLimited marks a classification attempt rejected by the model's
// quota. These attempts are retried with backoff; any other failure maps
// straight to a neutral fallback.
var ErrRateLimited = errors.New("classify: rate limited")
