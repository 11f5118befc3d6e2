package util

func BoolPtr(b bool) *bool {
	return &b
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}
