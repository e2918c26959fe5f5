package utils

// MaskSecret keeps the first four characters of s and hides the rest.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}
