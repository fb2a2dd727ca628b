package slim

import "errors"

// ErrInvalidLockOperation is reported when a release-style call is made
// by a caller that does not own the lock (or on a lock that is not held).
var ErrInvalidLockOperation = errors.New("slim: invalid lock operation")
