package service

import "strings"

// MaskRune replaces hidden characters of a student name.
const MaskRune = '○'

// MaskName keeps the first and last character of a name and masks the rest,
// counting characters rather than bytes. Blank names yield nil.
func MaskName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	var masked string
	switch n := len(runes); n {
	case 1:
		masked = trimmed
	case 2:
		masked = string(runes[0]) + string(MaskRune)
	default:
		masked = string(runes[0]) + strings.Repeat(string(MaskRune), n-2) + string(runes[n-1])
	}
	return &masked
}
