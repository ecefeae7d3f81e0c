//go:build !unix

package tuning

// maxFileDescriptors has no portable equivalent off unix; callers fall
// back to the conservative default.
func maxFileDescriptors() (int, bool) {
	return 0, false
}
