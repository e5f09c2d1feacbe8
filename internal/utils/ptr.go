package utils

// StringPtrValue dereferences s, treating nil as empty
func StringPtrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
